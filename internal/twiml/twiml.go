// Package twiml is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only the verbs the IVR flow needs are included.
package twiml

import (
	"bytes"
	"encoding/xml"
)

const sayLanguage = "es-ES"

type response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type sayVerb struct {
	XMLName  xml.Name `xml:"Say"`
	Language string   `xml:"language,attr"`
	Text     string   `xml:",chardata"`
}

type pauseVerb struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type redirectVerb struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type hangupVerb struct {
	XMLName xml.Name `xml:"Hangup"`
}

type gatherVerb struct {
	XMLName     xml.Name `xml:"Gather"`
	NumDigits   int      `xml:"numDigits,attr"`
	Action      string   `xml:"action,attr"`
	Method      string   `xml:"method,attr"`
	Timeout     int      `xml:"timeout,attr"`
	FinishOnKey string   `xml:"finishOnKey,attr"`
	Verbs       []any    `xml:",any"`
}

// Response accumulates verbs and renders the XML document.
type Response struct {
	verbs []any
}

func New() *Response { return &Response{} }

func (r *Response) Say(text string) *Response {
	r.verbs = append(r.verbs, sayVerb{Language: sayLanguage, Text: text})
	return r
}

func (r *Response) Pause(seconds int) *Response {
	r.verbs = append(r.verbs, pauseVerb{Length: seconds})
	return r
}

func (r *Response) Redirect(url string) *Response {
	r.verbs = append(r.verbs, redirectVerb{Method: "POST", URL: url})
	return r
}

func (r *Response) Hangup() *Response {
	r.verbs = append(r.verbs, hangupVerb{})
	return r
}

// Gather collects keyed digits and posts them to action. finishOnKey is left
// empty so the pound key is treated as a digit, matching the flow's
// fixed-length inputs.
type GatherOptions struct {
	NumDigits      int
	Action         string
	TimeoutSeconds int
	Prompts        []string

	// PausesAfterFirst inserts a 1s pause between the first prompt and the
	// rest, giving the caller a beat before the entry instruction.
	PauseAfterFirst bool
}

func (r *Response) Gather(opts GatherOptions) *Response {
	g := gatherVerb{
		NumDigits:   opts.NumDigits,
		Action:      opts.Action,
		Method:      "POST",
		Timeout:     opts.TimeoutSeconds,
		FinishOnKey: "",
	}
	for i, p := range opts.Prompts {
		if p == "" {
			continue
		}
		if i == 1 && opts.PauseAfterFirst {
			g.Verbs = append(g.Verbs, pauseVerb{Length: 1})
		}
		g.Verbs = append(g.Verbs, sayVerb{Language: sayLanguage, Text: p})
	}
	r.verbs = append(r.verbs, g)
	return r
}

// Render encodes the accumulated verbs as a TwiML document.
func (r *Response) Render() (string, error) {
	doc := response{Verbs: r.verbs}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
