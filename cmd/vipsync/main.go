// Command vipsync exports object-API datasets to Excel workbooks and
// imports edited workbooks back.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
