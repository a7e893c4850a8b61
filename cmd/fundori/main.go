// Command fundori は学習ポータルのWebサーバーを起動する。
//
// 使い方:
//
//	fundori [serve|healthcheck]
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/fundori/fundori/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
