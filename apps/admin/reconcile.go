package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) reconcile() error {
	n, err := cli.reconciler.ReconcileStudentsCounts(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("%d course(s) updated\n", n)
	return nil
}
