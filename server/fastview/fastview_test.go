package fastview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

type counter struct {
	N int `json:"n"`
}

func TestHub(t *testing.T) {
	Convey("Given a hub", t, func() {
		hub := NewHub[int]()

		Convey("Subscribers are primed with the latest update", func() {
			_, ok := hub.Latest()
			So(ok, ShouldBeFalse)

			hub.Publish(1)
			updates, unsubscribe := hub.Subscribe()
			defer unsubscribe()
			So(<-updates, ShouldEqual, 1)
		})

		Convey("A slow subscriber only sees the newest update", func() {
			updates, unsubscribe := hub.Subscribe()
			defer unsubscribe()
			for i := 0; i < 10; i++ {
				hub.Publish(i)
			}
			So(<-updates, ShouldEqual, 9)
			So(len(updates), ShouldEqual, 0)
		})

		Convey("Unsubscribing closes the channel and is idempotent", func() {
			updates, unsubscribe := hub.Subscribe()
			So(hub.Subscribers(), ShouldEqual, 1)
			unsubscribe()
			unsubscribe()
			_, open := <-updates
			So(open, ShouldBeFalse)
			So(hub.Subscribers(), ShouldEqual, 0)
			hub.Publish(3)
		})

		Convey("Feed converts a source channel into published updates", func() {
			source := make(chan string)
			strHub := NewHub[int]()
			go func() {
				defer close(source)
				source <- "a"
				source <- "abc"
			}()
			Feed(context.Background(), source, func(s string) int { return len(s) }, strHub)
			last, ok := strHub.Latest()
			So(ok, ShouldBeTrue)
			So(last, ShouldEqual, 3)
		})
	})
}

func TestClient(t *testing.T) {
	Convey("Given a websocket endpoint publishing hub updates", t, func() {
		hub := NewHub[counter]()
		hub.Publish(counter{N: 1})
		syncErrs := make(chan error, 1)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			updates, unsubscribe := hub.Subscribe()
			defer unsubscribe()
			cli, err := NewClient(updates, w, r)
			if err != nil {
				syncErrs <- err
				return
			}
			syncErrs <- cli.Sync()
		}))
		defer srv.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http")
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		// The read loop must run to answer pings.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		Convey("The client receives the primed update and then the latest one", func() {
			var got counter
			So(conn.ReadJSON(&got), ShouldBeNil)
			So(got.N, ShouldEqual, 1)

			for i := 2; i <= 5; i++ {
				hub.Publish(counter{N: i})
			}
			for got.N != 5 {
				So(conn.ReadJSON(&got), ShouldBeNil)
			}
			So(got.N, ShouldEqual, 5)

			Convey("A normal close ends Sync without error", func() {
				err := conn.WriteMessage(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				So(err, ShouldBeNil)
				select {
				case err := <-syncErrs:
					So(err, ShouldBeNil)
				case <-time.After(5 * time.Second):
					So("timeout", ShouldBeEmpty)
				}
				conn.Close()
			})
		})
	})
}
