// Command pieceswarmd serves and fetches files over the piece-exchanger
// protocol.
//
// Example run:
// $ pieceswarmd serve --addr :42070 ubuntu.iso
// $ pieceswarmd fetch --pieces 4916 --piece-len 262144 --length 1288490188 <roothash> ubuntu.iso localhost:42070
package main

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/anacrolix/log"
)

var flags struct {
	Debug bool `help:"dump every decoded message with go-spew"`

	*ServeCmd `arg:"subcommand:serve"`
	*FetchCmd `arg:"subcommand:fetch"`
}

func main() {
	if err := mainErr(); err != nil {
		log.Printf("error in main: %v", err)
		os.Exit(1)
	}
}

func mainErr() error {
	p := arg.MustParse(&flags)
	switch {
	case flags.ServeCmd != nil:
		return serveErr(*flags.ServeCmd, flags.Debug)
	case flags.FetchCmd != nil:
		return fetchErr(*flags.FetchCmd, flags.Debug)
	default:
		p.Fail(fmt.Sprintf("unexpected subcommand: %v", p.Subcommand()))
		panic("unreachable")
	}
}
