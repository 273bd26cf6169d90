//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Checks the shaders and runs the engine. Verbose mode turns on debug logging.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)

	var env []string
	if mg.Verbose() {
		env = append(env, "LUMEN_LOG_LEVEL=debug")
	}
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", "."), withDir("."), withEnv(env...), withStream()); err != nil {
		return err
	}
	return nil
}
