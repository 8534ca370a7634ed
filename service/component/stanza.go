// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package component

import (
	"encoding/xml"
	"strconv"

	"mellium.im/xmlstream"
	"mellium.im/xmpp/disco"
	"mellium.im/xmpp/disco/info"
	"mellium.im/xmpp/upload"
)

const (
	nsDataForms    = "jabber:x:data"
	nsUpload       = upload.NS
	nsUploadLegacy = "urn:xmpp:http:upload"
)

// legacyRequest is the child element form used by urn:xmpp:http:upload.
type legacyRequest struct {
	Filename    string `xml:"filename"`
	Size        string `xml:"size"`
	ContentType string `xml:"content-type"`
}

// slotLegacy is the urn:xmpp:http:upload answer, URLs carried as text.
type slotLegacy struct {
	XMLName xml.Name `xml:"urn:xmpp:http:upload slot"`
	Put     string   `xml:"put"`
	Get     string   `xml:"get"`
}

type discoInfo struct {
	XMLName  xml.Name `xml:"http://jabber.org/protocol/disco#info query"`
	Node     string   `xml:"node,attr,omitempty"`
	Identity info.Identity
	Features []info.Feature
	Forms    []dataForm `xml:"jabber:x:data x"`
}

type dataForm struct {
	Type   string      `xml:"type,attr"`
	Fields []formField `xml:"field"`
}

type formField struct {
	Var   string `xml:"var,attr"`
	Type  string `xml:"type,attr,omitempty"`
	Value string `xml:"value"`
}

func newDiscoInfo(node string, maxFileSize int64) discoInfo {
	size := strconv.FormatInt(maxFileSize, 10)
	form := func(ns string) dataForm {
		return dataForm{
			Type: "result",
			Fields: []formField{
				{Var: "FORM_TYPE", Type: "hidden", Value: ns},
				{Var: "max-file-size", Value: size},
			},
		}
	}
	return discoInfo{
		Node:     node,
		Identity: info.Identity{Category: "store", Type: "file", Name: "HTTP File Upload"},
		Features: []info.Feature{
			{Var: disco.NSInfo},
			{Var: nsUpload},
			{Var: nsUploadLegacy},
		},
		Forms: []dataForm{form(nsUpload), form(nsUploadLegacy)},
	}
}

// fileTooLarge is the application condition attached to v0 size rejections.
func fileTooLarge(maxFileSize int64) xml.TokenReader {
	return xmlstream.Wrap(
		xmlstream.Wrap(
			xmlstream.Token(xml.CharData(strconv.FormatInt(maxFileSize, 10))),
			xml.StartElement{Name: xml.Name{Local: "max-file-size"}},
		),
		xml.StartElement{Name: xml.Name{Space: nsUpload, Local: "file-too-large"}},
	)
}

func attrValue(attrs []xml.Attr, local string) string {
	for _, a := range attrs {
		if a.Name.Local == local && a.Name.Space == "" {
			return a.Value
		}
	}
	return ""
}
