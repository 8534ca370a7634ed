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
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/url"

	"mellium.im/xmlstream"
	"mellium.im/xmpp"
	accept "mellium.im/xmpp/component"
	"mellium.im/xmpp/disco"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/mux"
	"mellium.im/xmpp/stanza"
	"mellium.im/xmpp/upload"

	"github.com/fawa-io/httpupload/pkg/fwlog"
	"github.com/fawa-io/httpupload/service/slot"
)

type handler struct {
	ctx   context.Context
	addr  jid.JID
	slots SlotRequester
}

func (c *Component) newHandler(ctx context.Context, addr jid.JID) xmpp.Handler {
	h := &handler{ctx: ctx, addr: addr, slots: c.slots}
	m := mux.New(accept.NSAccept,
		mux.IQFunc(stanza.GetIQ, xml.Name{Space: disco.NSInfo, Local: "query"}, h.discoInfo),
		mux.IQFunc(stanza.GetIQ, xml.Name{Space: nsUpload, Local: "request"}, h.request),
		mux.IQFunc(stanza.GetIQ, xml.Name{Space: nsUploadLegacy, Local: "request"}, h.legacyRequest),
		mux.IQFunc(stanza.GetIQ, xml.Name{}, h.unsupported),
		mux.IQFunc(stanza.SetIQ, xml.Name{}, h.unsupported),
	)
	return xmpp.HandlerFunc(func(t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
		err := m.HandleXMPP(t, start)
		if !errors.Is(err, io.EOF) {
			return err
		}
		if start.Name.Local != "iq" {
			return nil
		}
		// The mux reports an iq without a payload as EOF.
		iq, err := stanza.NewIQ(*start)
		if err != nil || iq.Type == stanza.ResultIQ || iq.Type == stanza.ErrorIQ {
			return err
		}
		return h.unsupported(iq, t, &xml.StartElement{})
	})
}

func (h *handler) discoInfo(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	return h.result(t, iq, newDiscoInfo(attrValue(start.Attr, "node"), h.slots.MaxFileSize()))
}

func (h *handler) request(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	req := slot.Request{
		Sender:      bareJID(iq.From),
		Filename:    attrValue(start.Attr, "filename"),
		Size:        attrValue(start.Attr, "size"),
		ContentType: attrValue(start.Attr, "content-type"),
	}
	return h.requestSlot(t, iq, req, false)
}

func (h *handler) legacyRequest(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	var legacy legacyRequest
	if err := xml.NewTokenDecoder(t).DecodeElement(&legacy, start); err != nil {
		return h.fail(t, iq, stanza.Error{
			Type:      stanza.Modify,
			Condition: stanza.BadRequest,
			Text:      map[string]string{"": "malformed request"},
		}, nil)
	}
	req := slot.Request{
		Sender:      bareJID(iq.From),
		Filename:    legacy.Filename,
		Size:        legacy.Size,
		ContentType: legacy.ContentType,
	}
	return h.requestSlot(t, iq, req, true)
}

func (h *handler) unsupported(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	fwlog.Debugf("component: unsupported iq %s %s from %s", iq.Type, start.Name.Space, iq.From)
	return h.fail(t, iq, stanza.Error{Type: stanza.Cancel, Condition: stanza.ServiceUnavailable}, nil)
}

var errAllocate = stanza.Error{
	Type:      stanza.Wait,
	Condition: stanza.InternalServerError,
	Text:      map[string]string{"": "could not allocate slot"},
}

func (h *handler) requestSlot(t xmlstream.TokenReadEncoder, iq stanza.IQ, req slot.Request, legacy bool) error {
	granted, err := h.slots.RequestSlot(h.ctx, req)
	if err != nil {
		var rej *slot.Rejection
		if !errors.As(err, &rej) {
			fwlog.Errorf("component: slot for %s: %v", req.Sender, err)
			return h.fail(t, iq, errAllocate, nil)
		}
		fwlog.Infof("component: rejected slot for %s: %s", req.Sender, rej.Text)
		var payload xml.TokenReader
		if rej.MaxFileSize > 0 && !legacy {
			payload = fileTooLarge(rej.MaxFileSize)
		}
		return h.fail(t, iq, stanza.Error{
			Type:      stanza.ErrorType(rej.Type),
			Condition: stanza.Condition(rej.Condition),
			Text:      map[string]string{"": rej.Text},
		}, payload)
	}

	if legacy {
		return h.result(t, iq, slotLegacy{Put: granted.Put, Get: granted.Get})
	}
	putURL, err := url.Parse(granted.Put)
	if err != nil {
		fwlog.Errorf("component: slot for %s: %v", req.Sender, err)
		return h.fail(t, iq, errAllocate, nil)
	}
	getURL, err := url.Parse(granted.Get)
	if err != nil {
		fwlog.Errorf("component: slot for %s: %v", req.Sender, err)
		return h.fail(t, iq, errAllocate, nil)
	}
	return h.result(t, iq, upload.Slot{PutURL: putURL, GetURL: getURL})
}

// reply addresses a response to iq, answering from the component domain
// when the request carried no to.
func (h *handler) reply(iq stanza.IQ, typ stanza.IQType) stanza.IQ {
	resp := stanza.IQ{ID: iq.ID, Type: typ, From: iq.To, To: iq.From}
	if resp.From.Equal(jid.JID{}) {
		resp.From = h.addr
	}
	return resp
}

func (h *handler) result(t xmlstream.TokenReadEncoder, iq stanza.IQ, payload any) error {
	start := h.reply(iq, stanza.ResultIQ).StartElement()
	if err := t.EncodeToken(start); err != nil {
		return err
	}
	if err := t.Encode(payload); err != nil {
		return err
	}
	return t.EncodeToken(start.End())
}

func (h *handler) fail(t xmlstream.TokenReadEncoder, iq stanza.IQ, e stanza.Error, payload xml.TokenReader) error {
	_, err := xmlstream.Copy(t, h.reply(iq, stanza.ErrorIQ).Wrap(e.Wrap(payload)))
	return err
}
