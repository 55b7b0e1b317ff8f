package main

import (
	"io"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestCommandsRegistered(t *testing.T) {
	app := cli.NewApp()
	app.Writer = io.Discard
	app.Commands = []*cli.Command{infoCommand, gcDemoCommand, configCommand}

	want := map[string]bool{"info": false, "gc-demo": false, "config": false}
	for _, cmd := range app.Commands {
		if _, ok := want[cmd.Name]; ok {
			want[cmd.Name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected command %q to be registered", name)
		}
	}
}

func TestConfigCommandRequiresOneArg(t *testing.T) {
	app := cli.NewApp()
	app.Writer = io.Discard
	app.ErrWriter = io.Discard
	app.Commands = []*cli.Command{configCommand}

	if err := app.Run([]string{"jsgo", "config"}); err == nil {
		t.Fatal("expected an error when no config path is given")
	}
}
