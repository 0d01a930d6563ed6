package main

import (
	"flag"
	"strings"
)

func flagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

// repeatableFlag collects every occurrence of a flag that may be passed
// more than once, e.g. --approve <pat> --approve <pat>.
type repeatableFlag []string

func (r *repeatableFlag) String() string { return strings.Join(*r, ",") }

func (r *repeatableFlag) Set(v string) error {
	*r = append(*r, v)
	return nil
}
