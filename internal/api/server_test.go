package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/behavior"
	"github.com/talgya/swift-dreams/internal/config"
	"github.com/talgya/swift-dreams/internal/engine"
	"github.com/talgya/swift-dreams/internal/motion"
	"github.com/talgya/swift-dreams/internal/world"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/talgya/swift-dreams/internal/api"
)

var _ = Describe("Server", func() {
	var (
		sim  *engine.Simulation
		eng  *engine.Engine
		srv  *Server
		ts   *httptest.Server
		bed  *world.Destination
		desk *world.Destination
	)

	BeforeEach(func() {
		cfg := config.Default()
		cfg.Round.Seconds = 0
		arena := world.NewArena(20)
		bed = arena.Add(&world.Destination{
			Kind: world.DestBed, Position: world.Vec3{Y: world.BedHeight},
			Forward: world.Vec3{Z: 1}, HalfExtents: world.BedHalfExtents,
		})
		desk = arena.Add(&world.Destination{
			Kind: world.DestDesk, Position: world.Vec3{X: 8, Y: world.DeskHeight, Z: 8},
			Forward: world.Vec3{Z: 1}, HalfExtents: world.DeskHalfExtents,
		})

		sleeper := agents.New(1, "Dot Dale", world.Vec3{}, agents.DefaultConsiderationDepth)
		sleeper.Body = motion.Body{
			Position: world.Vec3{Y: motion.NewKinematic(cfg.Walk.FloatHeight).RestHeight(bed)}, Facing: world.Vec3{Z: 1},
			Grounded: true, Support: bed.ID,
		}
		sleeper.Advisor.Restore(&behavior.Sleep{Bed: bed.ID})
		walker := agents.New(2, "Eli Elm", world.Vec3{X: -8, Z: -8}, agents.DefaultConsiderationDepth)

		sim = engine.NewSimulation(cfg, arena, []*agents.Agent{sleeper, walker})
		sim.RunID = "api-run"
		_, err := sim.Step(context.Background(), 1)
		Expect(err).ToNot(HaveOccurred())

		eng = engine.NewEngine(cfg.TickRateHz)
		srv = NewServer(sim, eng, nil, config.APIConfig{
			AdminKey: "secret", RelayKey: "relay", MaxStreamConns: 1, InterruptPerMinute: 2,
		})
		ts = httptest.NewServer(srv.Handler())
		DeferCleanup(ts.Close)
	})

	do := func(method, path, token, body string) *http.Response {
		req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
		Expect(err).ToNot(HaveOccurred())
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	decode := func(resp *http.Response, v any) {
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	It("serves the run status", func() {
		resp := do(http.MethodGet, "/api/v1/status", "", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var st map[string]any
		decode(resp, &st)
		Expect(st).To(HaveKeyWithValue("run_id", "api-run"))
		Expect(st).To(HaveKeyWithValue("agents", 2.0))
		Expect(st).To(HaveKeyWithValue("asleep", 1.0))
		Expect(st).To(HaveKeyWithValue("speed", 1.0))
	})

	It("lists and filters agents", func() {
		var all []engine.AgentFrame
		decode(do(http.MethodGet, "/api/v1/agents", "", ""), &all)
		Expect(all).To(HaveLen(2))

		var sleeping []engine.AgentFrame
		decode(do(http.MethodGet, "/api/v1/agents?behavior=sleep", "", ""), &sleeping)
		Expect(sleeping).To(HaveLen(1))
		Expect(sleeping[0].Name).To(Equal("Dot Dale"))
	})

	It("serves one agent", func() {
		resp := do(http.MethodGet, "/api/v1/agent/2", "", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var detail map[string]any
		decode(resp, &detail)
		Expect(detail).To(HaveKeyWithValue("name", "Eli Elm"))

		Expect(do(http.MethodGet, "/api/v1/agent/99", "", "").StatusCode).To(Equal(http.StatusNotFound))
		Expect(do(http.MethodGet, "/api/v1/agent/abc", "", "").StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("serves destination statuses", func() {
		var beds []map[string]any
		decode(do(http.MethodGet, "/api/v1/destinations?kind=bed", "", ""), &beds)
		Expect(beds).To(HaveLen(1))
		Expect(beds[0]).To(HaveKeyWithValue("holder", 1.0))

		Expect(do(http.MethodGet, "/api/v1/destinations?kind=sofa", "", "").StatusCode).To(Equal(http.StatusBadRequest))
	})

	Context("interrupts", func() {
		It("requires the admin token", func() {
			Expect(do(http.MethodPost, "/api/v1/agent/1/interrupt", "", "").StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(do(http.MethodPost, "/api/v1/agent/1/interrupt", "wrong", "").StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("queues a strike on a sleeper", func() {
			Expect(do(http.MethodPost, "/api/v1/agent/1/interrupt", "secret", "").StatusCode).To(Equal(http.StatusAccepted))
			detail, err := sim.Agent(1)
			Expect(err).ToNot(HaveOccurred())
			Expect(detail.Interrupted).To(BeTrue())
		})

		It("refuses agents that are awake", func() {
			Expect(do(http.MethodPost, "/api/v1/agent/2/interrupt", "secret", "").StatusCode).To(Equal(http.StatusConflict))
			Expect(do(http.MethodPost, "/api/v1/agent/42/interrupt", "secret", "").StatusCode).To(Equal(http.StatusNotFound))
		})

		It("rate limits strikes", func() {
			Expect(do(http.MethodPost, "/api/v1/agent/1/interrupt", "secret", "").StatusCode).To(Equal(http.StatusAccepted))
			Expect(do(http.MethodPost, "/api/v1/agent/1/interrupt", "secret", "").StatusCode).To(Equal(http.StatusAccepted))
			resp := do(http.MethodPost, "/api/v1/agent/1/interrupt", "secret", "")
			Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
			Expect(resp.Header.Get("Retry-After")).ToNot(BeEmpty())
		})
	})

	It("disables admin endpoints without a key", func() {
		srv.AdminKey = ""
		Expect(do(http.MethodPost, "/api/v1/speed", "secret", `{"speed":2}`).StatusCode).To(Equal(http.StatusForbidden))
	})

	It("removes destinations", func() {
		path := "/api/v1/destination/" + jsonNumber(uint64(desk.ID))
		Expect(do(http.MethodDelete, path, "secret", "").StatusCode).To(Equal(http.StatusOK))
		Expect(do(http.MethodDelete, path, "secret", "").StatusCode).To(Equal(http.StatusNotFound))

		var events []engine.Event
		decode(do(http.MethodGet, "/api/v1/events?category=arena", "", ""), &events)
		Expect(events).To(HaveLen(1))
	})

	It("changes speed", func() {
		resp := do(http.MethodPost, "/api/v1/speed", "secret", `{"speed":4}`)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(eng.Speed()).To(Equal(4.0))
		Expect(do(http.MethodPost, "/api/v1/speed", "secret", `{"speed":-1}`).StatusCode).To(Equal(http.StatusBadRequest))
		Expect(do(http.MethodPost, "/api/v1/snapshot", "secret", "").StatusCode).To(Equal(http.StatusServiceUnavailable))
	})

	Context("stream", func() {
		wsURL := func(key string) string {
			return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream?key=" + key
		}

		It("rejects callers without the relay key", func() {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL("nope"), nil)
			Expect(err).To(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("pushes the latest frame and then every new one", func() {
			conn, _, err := websocket.DefaultDialer.Dial(wsURL("relay"), nil)
			Expect(err).ToNot(HaveOccurred())
			defer conn.Close()

			var f engine.Frame
			Expect(conn.ReadJSON(&f)).To(Succeed())
			Expect(f.Tick).To(Equal(uint64(1)))

			_, err = sim.Step(context.Background(), 2)
			Expect(err).ToNot(HaveOccurred())
			Expect(conn.ReadJSON(&f)).To(Succeed())
			Expect(f.Tick).To(Equal(uint64(2)))
			Expect(f.Agents).To(HaveLen(2))
		})

		It("limits concurrent streams", func() {
			conn, _, err := websocket.DefaultDialer.Dial(wsURL("relay"), nil)
			Expect(err).ToNot(HaveOccurred())
			defer conn.Close()
			var f engine.Frame
			Expect(conn.ReadJSON(&f)).To(Succeed())

			_, resp, err := websocket.DefaultDialer.Dial(wsURL("relay"), nil)
			Expect(err).To(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})
	})
})
