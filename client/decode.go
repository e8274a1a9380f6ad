package client

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/dan-strohschein/adt-batch/transport"
)

// LockResult is the decoded answer of a LOCK action.
type LockResult struct {
	Handle     string
	CorrNr     string
	CorrUser   string
	CorrText   string
	IsLocal    bool
	IsLinkedUp bool
}

type lockEnvelope struct {
	Data struct {
		LockHandle string `xml:"LOCK_HANDLE"`
		CorrNr     string `xml:"CORRNR"`
		CorrUser   string `xml:"CORRUSER"`
		CorrText   string `xml:"CORRTEXT"`
		IsLocal    string `xml:"IS_LOCAL"`
		IsLinkUp   string `xml:"IS_LINK_UP"`
	} `xml:"values>DATA"`
}

func decodeLock(resp *transport.Response) (LockResult, error) {
	var env lockEnvelope
	if err := xml.Unmarshal([]byte(resp.Body), &env); err != nil {
		return LockResult{}, fmt.Errorf("decode lock result: %w", err)
	}
	if env.Data.LockHandle == "" {
		return LockResult{}, fmt.Errorf("decode lock result: no lock handle in response")
	}
	return LockResult{
		Handle:     env.Data.LockHandle,
		CorrNr:     env.Data.CorrNr,
		CorrUser:   env.Data.CorrUser,
		CorrText:   env.Data.CorrText,
		IsLocal:    env.Data.IsLocal == "X",
		IsLinkedUp: env.Data.IsLinkUp == "X",
	}, nil
}

// ActivationMessage is one message returned by an activation run.
type ActivationMessage struct {
	ObjectURI string
	Type      string
	Text      string
}

// ActivationResult summarizes an activation run.
type ActivationResult struct {
	Success  bool
	Messages []ActivationMessage
}

type activationEnvelope struct {
	Messages []struct {
		ObjDescr  string `xml:"objDescr,attr"`
		Type      string `xml:"type,attr"`
		URI       string `xml:"href,attr"`
		ShortText struct {
			Text []string `xml:"txt"`
		} `xml:"shortText"`
	} `xml:"msg"`
}

func decodeActivation(resp *transport.Response) (ActivationResult, error) {
	result := ActivationResult{Success: true}
	if strings.TrimSpace(resp.Body) == "" {
		return result, nil
	}

	var env activationEnvelope
	if err := xml.Unmarshal([]byte(resp.Body), &env); err != nil {
		return ActivationResult{}, fmt.Errorf("decode activation result: %w", err)
	}
	for _, m := range env.Messages {
		result.Messages = append(result.Messages, ActivationMessage{
			ObjectURI: m.URI,
			Type:      m.Type,
			Text:      strings.Join(m.ShortText.Text, " "),
		})
		if m.Type == "E" || m.Type == "A" {
			result.Success = false
		}
	}
	return result, nil
}

// ObjectReference identifies an object for activation.
type ObjectReference struct {
	URI  string
	Name string
}

type objectReferences struct {
	XMLName xml.Name `xml:"adtcore:objectReferences"`
	NS      string   `xml:"xmlns:adtcore,attr"`
	Refs    []struct {
		URI  string `xml:"adtcore:uri,attr"`
		Name string `xml:"adtcore:name,attr"`
	} `xml:"adtcore:objectReference"`
}

func encodeObjectReferences(objs []ObjectReference) (string, error) {
	doc := objectReferences{NS: "http://www.sap.com/adt/core"}
	for _, o := range objs {
		doc.Refs = append(doc.Refs, struct {
			URI  string `xml:"adtcore:uri,attr"`
			Name string `xml:"adtcore:name,attr"`
		}{URI: o.URI, Name: strings.ToUpper(o.Name)})
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return xml.Header + string(out), nil
}
