/*
Copyright 2025 Driftcap Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/driftcap/driftcap"
	"github.com/driftcap/driftcap/config"
	"github.com/driftcap/driftcap/database"
)

// Driftcap represents the CLI application, encapsulating the root Cobra command.
type Driftcap struct {
	cmd *cobra.Command
}

// driftcapInstance holds the runtime instance and configuration shared by the
// subcommands.
type driftcapInstance struct {
	driftcap *driftcap.Driftcap
	cnf      *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the Driftcap instance before
// running any command.
func preRun(app *driftcapInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newDriftcap, err := setupDriftcap(cnf)
		if err != nil {
			log.Fatal(err)
		}

		app.driftcap = newDriftcap
		app.cnf = cnf

		return nil
	}
}

// setupDriftcap connects the shared store and wires the webhook runner.
func setupDriftcap(cfg *config.Configuration) (*driftcap.Driftcap, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newDriftcap, err := driftcap.NewDriftcap(db, driftcap.NewWebhookRunner())
	if err != nil {
		return nil, fmt.Errorf("error creating driftcap: %v", err)
	}
	return newDriftcap, nil
}

// NewCLI creates the command-line interface for the Driftcap application.
func NewCLI() *Driftcap {
	var configFile string
	b := &driftcapInstance{}

	var rootCmd = &cobra.Command{
		Use:   "driftcap",
		Short: "Change capture and task orchestration core",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./driftcap.json", "Configuration file for driftcap")
	rootCmd.PersistentPreRunE = preRun(b, &configFile)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))

	return &Driftcap{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during
// execution.
func (w Driftcap) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
