package ffmpeg

import (
	"os"
	"os/exec"
)

// envProvider abstracts environment and path lookup operations.
type envProvider interface {
	Getenv(key string) string
	LookPath(file string) (string, error)
}

// fileStatter abstracts file existence checks.
type fileStatter interface {
	Stat(name string) (os.FileInfo, error)
}

var (
	_ envProvider = osEnv{}
	_ fileStatter = osEnv{}
)

// osEnv implements envProvider and fileStatter with the os package.
type osEnv struct{}

func (osEnv) Getenv(key string) string {
	return os.Getenv(key)
}

func (osEnv) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osEnv) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}
