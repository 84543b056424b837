package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ainotebook/notebase/formats/dsd"
)

// print writes v to the output in the selected format.
func (a *app) print(v interface{}) error {
	format, ok := dsd.ParseFormat(a.output)
	if !ok || (format != dsd.JSON && format != dsd.YAML) {
		return fmt.Errorf("unsupported output format %q", a.output)
	}

	data, err := dsd.DumpWithoutIdentifier(v, format)
	if err != nil {
		return err
	}
	if format == dsd.JSON {
		var indented bytes.Buffer
		if err := json.Indent(&indented, data, "", "  "); err != nil {
			return err
		}
		data = append(indented.Bytes(), '\n')
	}

	_, err = a.out.Write(data)
	return err
}
