package speaker

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// soapArg is one named argument of a UPnP action. Arguments marshal in
// the order given; the services care about it.
type soapArg struct {
	Name  string
	Value string
}

// soapEnvelope is the outer shell of every control response.
type soapEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    soapBody `xml:"Body"`
}

type soapBody struct {
	Fault *soapFault `xml:"Fault"`
	Inner []byte     `xml:",innerxml"`
}

type soapFault struct {
	FaultString string      `xml:"faultstring"`
	Detail      faultDetail `xml:"detail"`
}

type faultDetail struct {
	UPnPError upnpError `xml:"UPnPError"`
}

type upnpError struct {
	Code        int    `xml:"errorCode"`
	Description string `xml:"errorDescription"`
}

// soapCall posts one UPnP action to a device's control endpoint and
// returns the response values keyed by their element names. A SOAP fault
// becomes an ErrControlFault carrying the UPnP error code.
func (c *Client) soapCall(ctx context.Context, address, controlPath, service, action string, args []soapArg) (map[string]string, error) {
	endpoint := "http://" + address + controlPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(soapEnvelopeFor(service, action, args)))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", `"`+service+"#"+action+`"`)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", action, err)
	}

	var envelope soapEnvelope
	if err := xml.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%s: unexpected status %d: %w", action, resp.StatusCode, err)
	}

	if fault := envelope.Body.Fault; fault != nil {
		c.logger.Debug("Control action faulted",
			slog.String("action", action),
			slog.Int("upnp_error", fault.Detail.UPnPError.Code))
		return nil, fmt.Errorf("%w: %s error %d (%s)", ErrControlFault, action, fault.Detail.UPnPError.Code, faultReason(fault))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", action, resp.StatusCode)
	}

	return soapValues(envelope.Body.Inner)
}

// soapEnvelopeFor renders the request envelope for one action.
func soapEnvelopeFor(service, action string, args []soapArg) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body>`)
	fmt.Fprintf(&b, `<u:%s xmlns:u="%s">`, action, service)
	for _, arg := range args {
		fmt.Fprintf(&b, "<%s>%s</%s>", arg.Name, xmlEscape(arg.Value), arg.Name)
	}
	fmt.Fprintf(&b, `</u:%s></s:Body></s:Envelope>`, action)
	return b.String()
}

// soapValues pulls leaf element text out of an action response, keyed by
// local element name.
func soapValues(innerXML []byte) (map[string]string, error) {
	values := make(map[string]string)
	dec := xml.NewDecoder(bytes.NewReader(innerXML))
	var current string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing response values: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			current = t.Name.Local
			values[current] = ""
		case xml.CharData:
			if current != "" {
				values[current] += string(t)
			}
		case xml.EndElement:
			current = ""
		}
	}
	return values, nil
}

func faultReason(fault *soapFault) string {
	if desc := fault.Detail.UPnPError.Description; desc != "" {
		return desc
	}
	if fault.FaultString != "" {
		return fault.FaultString
	}
	return "no description"
}

// xmlEscape escapes a value for embedding in element content. Metadata
// documents nest XML inside XML, so escaping is load bearing here.
func xmlEscape(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}
