package display

import (
	"fmt"
	"os"

	"github.com/backmassage/vidrelay/internal/term"
)

const banner = `       _     _          _
__   _(_) __| |_ __ ___| | __ _ _   _
\ \ / / |/ _`+"`"+` | '__/ _ \ |/ _`+"`"+` | | | |
 \ V /| | (_| | | |  __/ | (_| | |_| |
  \_/ |_|\__,_|_|  \___|_|\__,_|\__, |
                                |___/
`

// PrintBanner prints the banner to stderr in the banner color.
func PrintBanner() {
	fmt.Fprint(os.Stderr, term.Paint(term.Magenta, banner))
}
