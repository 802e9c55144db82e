package relayinfo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"relix.lol/chk"
	"relix.lol/errorf"
	"relix.lol/normalize"
)

// Fetch requests the information document from a relay. The url may be in
// websocket or http form. With no deadline on the context it allows 7
// seconds.
func Fetch(c context.Context, u string) (info *T, err error) {
	if _, ok := c.Deadline(); !ok {
		var cancel context.CancelFunc
		c, cancel = context.WithTimeout(c, 7*time.Second)
		defer cancel()
	}
	hu := normalize.HTTPURL(u)
	if len(hu) == 0 {
		err = errorf.E("cannot normalize relay url %q", u)
		return
	}
	var req *http.Request
	if req, err = http.NewRequestWithContext(c, http.MethodGet,
		string(hu), nil); chk.E(err) {
		return
	}
	req.Header.Add("Accept", "application/nostr+json")
	var resp *http.Response
	if resp, err = http.DefaultClient.Do(req); err != nil {
		err = errorf.E("request failed: %w", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err = errorf.E("%s returned %s", hu, resp.Status)
		return
	}
	var b []byte
	if b, err = io.ReadAll(resp.Body); chk.E(err) {
		return
	}
	info = &T{}
	if err = json.Unmarshal(b, info); chk.E(err) {
		info = nil
		return
	}
	return
}
