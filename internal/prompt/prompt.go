// Package prompt asks yes/no questions on the terminal.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrDeclined is returned when the user answers no. The CLI exits with
// status 5 for it.
var ErrDeclined = errors.New("declined by user")

// Confirmer reads answers from In and writes questions to Out.
type Confirmer struct {
	in  *bufio.Reader
	out io.Writer

	// AssumeYes answers every question with yes without reading input.
	AssumeYes bool
}

// New returns a Confirmer over in and out.
func New(in io.Reader, out io.Writer, assumeYes bool) *Confirmer {
	return &Confirmer{in: bufio.NewReader(in), out: out, AssumeYes: assumeYes}
}

// Confirm asks question and reports whether the answer was y or yes. End
// of input counts as no.
func (c *Confirmer) Confirm(question string) bool {
	if c.AssumeYes {
		return true
	}

	fmt.Fprintf(c.out, "%s [y/N]: ", question)

	response, err := c.in.ReadString('\n')
	if err != nil && response == "" {
		fmt.Fprintln(c.out)
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// Require is Confirm that turns a no into ErrDeclined.
func (c *Confirmer) Require(question string) error {
	if !c.Confirm(question) {
		return ErrDeclined
	}
	return nil
}
