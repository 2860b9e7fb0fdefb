// Package all pulls in every shell command provider.
package all

import (
	_ "github.com/IELS2001/m16go/pkg/cli/cmds/modem"
)
