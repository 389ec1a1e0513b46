// Package render produces the nr-uesoftmodem configuration file content.
package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"
)

//go:embed templates/ue.conf.tmpl
var ueConfTemplate string

var tmpl = template.Must(template.New("ue.conf").Parse(ueConfTemplate))

// Params are the resolved substitution values for the UE configuration
// file. SDHex must already be in its wire form (see SDHex).
type Params struct {
	IMSI  string
	Key   string
	OPC   string
	DNN   string
	SST   int
	SDHex string
}

// Render produces the configuration file text. It is a pure function:
// identical inputs yield byte-identical output. Callers trim trailing
// whitespace before comparing or writing.
func Render(p Params) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("rendering UE configuration: %w", err)
	}
	return buf.String(), nil
}

// SDHex maps an optional Slice Differentiator to its lowercase 0x-prefixed
// hex form. The 3GPP sentinel 0xffffff means "no differentiator assigned".
func SDHex(sd *int) string {
	if sd == nil {
		return "0xffffff"
	}
	return fmt.Sprintf("%#x", *sd)
}
