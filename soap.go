package sensecam

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clbanning/mxj"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/icholy/digest"
)

const (
	nsDevice = "http://www.onvif.org/ver10/device/wsdl"
	nsMedia  = "http://www.onvif.org/ver10/media/wsdl"
	nsSchema = "http://www.onvif.org/ver10/schema"

	defaultSOAPTimeout = 10 * time.Second
)

var xmlEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", `"`, "&quot;", `'`, "&apos;")

// soapClient posts SOAP 1.2 requests to one service endpoint.
type soapClient struct {
	endpoint string
	username string
	password string
	client   *http.Client
}

// newHTTPClient wraps base (or a default client) with HTTP digest
// authentication when a username is set.
func newHTTPClient(base *http.Client, username, password string) *http.Client {
	if base == nil {
		base = &http.Client{Timeout: defaultSOAPTimeout}
	}
	if username == "" {
		return base
	}
	return &http.Client{
		Transport: &digest.Transport{
			Username:  username,
			Password:  password,
			Transport: base.Transport,
		},
		Timeout: base.Timeout,
		Jar:     base.Jar,
	}
}

// call sends body inside an envelope and returns the response Body element.
// A SOAP fault is returned as *SOAPFault.
func (c *soapClient) call(action, body string) (mxj.Map, error) {
	envelope := []byte(c.envelope(body, time.Now()))

	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, err
	}
	req.ContentLength = int64(len(envelope))
	req.Header.Set("Content-Type", `application/soap+xml; charset=utf-8; action="`+action+`"`)
	req.Header.Set("SOAPAction", action)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	glog.V(2).Infof("SOAP %s -> %s: HTTP %d %s", action, c.endpoint, resp.StatusCode, string(data))

	mapXML, parseErr := mxj.NewMapXml(data)
	if parseErr == nil {
		if fault := faultOf(mapXML); fault != nil {
			return nil, fault
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("parse response: %w", parseErr)
	}

	bodyValue, err := mapXML.ValueForPath("Envelope.Body")
	if err != nil {
		return nil, fmt.Errorf("response has no SOAP body: %w", err)
	}
	bodyMap, ok := bodyValue.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("response has an empty SOAP body")
	}
	return mxj.Map(bodyMap), nil
}

func (c *soapClient) envelope(body string, now time.Time) string {
	header := ""
	if c.username != "" {
		header = "<s:Header>" + usernameToken(c.username, c.password, now) + "</s:Header>"
	}
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"` +
		` xmlns:tds="` + nsDevice + `" xmlns:trt="` + nsMedia + `" xmlns:tt="` + nsSchema + `">` +
		header + "<s:Body>" + body + "</s:Body></s:Envelope>"
}

// usernameToken renders a WS-Security UsernameToken with a PasswordDigest of
// Base64(SHA1(nonce + created + password)).
func usernameToken(username, password string, now time.Time) string {
	nonce := uuid.New()
	created := now.UTC().Format("2006-01-02T15:04:05.000Z")

	h := sha1.New()
	h.Write(nonce[:])
	h.Write([]byte(created))
	h.Write([]byte(password))
	passwordDigest := base64.StdEncoding.EncodeToString(h.Sum(nil))

	return `<wsse:Security s:mustUnderstand="1"` +
		` xmlns:wsse="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"` +
		` xmlns:wsu="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd">` +
		`<wsse:UsernameToken>` +
		`<wsse:Username>` + xmlEscaper.Replace(username) + `</wsse:Username>` +
		`<wsse:Password Type="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordDigest">` +
		passwordDigest + `</wsse:Password>` +
		`<wsse:Nonce EncodingType="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary">` +
		base64.StdEncoding.EncodeToString(nonce[:]) + `</wsse:Nonce>` +
		`<wsu:Created>` + created + `</wsu:Created>` +
		`</wsse:UsernameToken></wsse:Security>`
}

func faultOf(mapXML mxj.Map) *SOAPFault {
	v, err := mapXML.ValueForPath("Envelope.Body.Fault")
	if err != nil || v == nil {
		return nil
	}
	fault := mxj.Map{"Fault": v}

	code := firstText(fault, "Fault.Code.Subcode.Value", "Fault.Code.Value", "Fault.faultcode")
	reason := firstText(fault, "Fault.Reason.Text", "Fault.faultstring")
	return &SOAPFault{Code: code, Reason: reason}
}

// firstText returns the text of the first path present in m.
func firstText(m mxj.Map, paths ...string) string {
	for _, path := range paths {
		if v, err := m.ValueForPath(path); err == nil && v != nil {
			if s := strings.TrimSpace(textOf(v)); s != "" {
				return s
			}
		}
	}
	return ""
}
