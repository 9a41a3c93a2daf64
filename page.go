// This file contains the served frontend surface: the embedded page shell,
// the bridge client runtime, the optional CSS reset and the default favicon.
// Everything here is assembled once at server construction.
package webui

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"html/template"
	"strings"
)

//go:embed assets/page.html
var pageShellSrc string

//go:embed assets/script.js
var bridgeScript string

//go:embed assets/reset.css
var resetCSS string

var pageShell = template.Must(template.New("page").Parse(pageShellSrc))

// encodedFavicon is a 16x16 32bpp ICO, base64 encoded, served at
// /favicon.ico when InjectDefaultFavicon is set.
const encodedFavicon = "AAABAAEAEBAAAAEAIABoBAAAFgAAACgAAAAQAAAAIAAAAAEAIAAAAAAAQAQAAAAAAAAAAAAAAAAA" +
	"AAAAAAAgICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/" +
	"ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8g" +
	"ICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAg" +
	"IP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP/mjjr/5o46/+aOOv/mjjr/5o46" +
	"/+aOOv/mjjr/5o46/+aOOv/mjjr/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/5o46/+aOOv/mjjr/" +
	"5o46/+aOOv/mjjr/5o46/+aOOv/mjjr/5o46/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/+aOOv/m" +
	"jjr/5o46/+aOOv/mjjr/5o46/+aOOv/mjjr/5o46/+aOOv8gICD/ICAg/yAgIP8gICD/ICAg/yAg" +
	"IP/mjjr/5o46/+aOOv/mjjr/5o46/+aOOv/mjjr/5o46/+aOOv/mjjr/ICAg/yAgIP8gICD/ICAg" +
	"/yAgIP8gICD/5o46/+aOOv/mjjr/5o46/+aOOv/mjjr/5o46/+aOOv/mjjr/5o46/yAgIP8gICD/" +
	"ICAg/yAgIP8gICD/ICAg/+aOOv/mjjr/5o46/+aOOv/mjjr/5o46/+aOOv/mjjr/5o46/+aOOv8g" +
	"ICD/ICAg/yAgIP8gICD/ICAg/yAgIP/mjjr/5o46/+aOOv/mjjr/5o46/+aOOv/mjjr/5o46/+aO" +
	"Ov/mjjr/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/5o46/+aOOv/mjjr/5o46/+aOOv/mjjr/5o46" +
	"/+aOOv/mjjr/5o46/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/+aOOv/mjjr/5o46/+aOOv/mjjr/" +
	"5o46/+aOOv/mjjr/5o46/+aOOv8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP/mjjr/5o46/+aOOv/m" +
	"jjr/5o46/+aOOv/mjjr/5o46/+aOOv/mjjr/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAg" +
	"IP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg" +
	"/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/" +
	"ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8gICD/ICAg/yAgIP8g" +
	"ICD/AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA" +
	"AAAAAAAAAAAAAA=="

func defaultFavicon() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encodedFavicon)

	if err != nil {
		return nil, wrapF(err, "failed to decode bundled favicon")
	}
	return data, nil
}

type pageShellData struct {
	Title      string
	Lang       string
	Encoding   string
	Viewport   string
	InjectFont bool
}

func buildPage(page resolvedPage) ([]byte, error) {
	var buf bytes.Buffer

	err := pageShell.Execute(&buf, pageShellData{
		Title:      page.title,
		Lang:       page.lang,
		Encoding:   page.encoding,
		Viewport:   page.viewport,
		InjectFont: page.injectFont,
	})

	if err != nil {
		return nil, wrapF(err, "failed to render page shell")
	}
	return buf.Bytes(), nil
}

func buildStylesheet(injectReset bool, page resolvedPage) []byte {
	var sb strings.Builder

	if injectReset {
		sb.WriteString(resetCSS)

		sb.WriteString("\n\n")
	}
	sb.WriteString(page.baseCSS)

	return []byte(sb.String())
}

// buildScript assembles the served /script.js: the bridge runtime with the
// debug flag and socket scheme patched in, followed by the user script so
// the _ui* globals are defined before it runs.
func buildScript(debug, useTLS bool, page resolvedPage) []byte {
	script := bridgeScript

	if debug {
		script = strings.Replace(script, "var DEBUG = false;", "var DEBUG = true;", 1)
	}
	if useTLS {
		script = strings.Replace(script, `var SCHEME = "ws";`, `var SCHEME = "wss";`, 1)
	}
	if page.baseJS != "" {
		script = script + "\n\n" + page.baseJS
	}
	return []byte(script)
}
