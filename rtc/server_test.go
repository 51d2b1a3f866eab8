package rtc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pion/webrtc/v3"
	"go.viam.com/test"

	"github.com/edaniels/cursorstream"
)

func TestHandleOffer(t *testing.T) {
	logger := golog.NewTestLogger(t)
	hub := cursorstream.NewHub(cursorstream.NewCache(), cursorstream.Config{
		Logger:            logger,
		HeartbeatInterval: time.Hour,
	})
	defer func() {
		test.That(t, hub.Close(), test.ShouldBeNil)
	}()
	srv := NewServer(hub, logger)
	defer func() {
		test.That(t, srv.Close(), test.ShouldBeNil)
	}()

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleOffer))
	defer ts.Close()

	// A real client-side offer with the cursor data channel attached.
	client, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, client.Close(), test.ShouldBeNil)
	}()
	_, err = client.CreateDataChannel(cursorChannelLabel, nil)
	test.That(t, err, test.ShouldBeNil)

	offer, err := client.CreateOffer(nil)
	test.That(t, err, test.ShouldBeNil)
	gathered := webrtc.GatheringCompletePromise(client)
	test.That(t, client.SetLocalDescription(offer), test.ShouldBeNil)
	<-gathered

	body, err := json.Marshal(sessionDescription{
		SDP:  client.LocalDescription().SDP,
		Type: client.LocalDescription().Type.String(),
	})
	test.That(t, err, test.ShouldBeNil)

	resp, err := http.Post(ts.URL, "application/json", bytes.NewReader(body))
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)

	var answer sessionDescription
	test.That(t, json.NewDecoder(resp.Body).Decode(&answer), test.ShouldBeNil)
	test.That(t, answer.Type, test.ShouldEqual, "answer")
	test.That(t, answer.SDP, test.ShouldNotBeEmpty)

	// The answer must be a usable remote description for the client.
	err = client.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	})
	test.That(t, err, test.ShouldBeNil)
}

func TestHandleOfferBadBody(t *testing.T) {
	logger := golog.NewTestLogger(t)
	hub := cursorstream.NewHub(cursorstream.NewCache(), cursorstream.Config{
		Logger:            logger,
		HeartbeatInterval: time.Hour,
	})
	defer func() {
		test.That(t, hub.Close(), test.ShouldBeNil)
	}()
	srv := NewServer(hub, logger)
	defer func() {
		test.That(t, srv.Close(), test.ShouldBeNil)
	}()

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleOffer))
	defer ts.Close()

	resp, err := http.Post(ts.URL, "application/json", bytes.NewReader([]byte("{")))
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusBadRequest)

	resp2, err := http.Post(ts.URL, "application/json", bytes.NewReader([]byte(`{"sdp":"not sdp","type":"offer"}`)))
	test.That(t, err, test.ShouldBeNil)
	defer resp2.Body.Close()
	test.That(t, resp2.StatusCode, test.ShouldEqual, http.StatusInternalServerError)
}
