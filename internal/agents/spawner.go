// Agent spawning: names and places the dweebs of a fresh run.
package agents

import (
	"math"
	"math/rand"

	"github.com/talgya/swift-dreams/internal/world"
)

// Spawner creates agents for the simulation.
type Spawner struct {
	rng    *rand.Rand
	nextID AgentID
	depth  float64
}

// NewSpawner creates an agent spawner with the given seed. depth is handed to
// every advisor it creates.
func NewSpawner(seed int64, depth float64) *Spawner {
	return &Spawner{
		rng:    rand.New(rand.NewSource(seed + 300)),
		nextID: 1,
		depth:  depth,
	}
}

// SetNextID sets the next agent ID to be issued (used when restoring from DB).
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// NextID returns the ID the next spawn will receive.
func (s *Spawner) NextID() AgentID {
	return s.nextID
}

// SpawnAll creates one agent per spawn point.
func (s *Spawner) SpawnAll(spawns []world.Vec3, tick uint64) []*Agent {
	agents := make([]*Agent, 0, len(spawns))
	for _, p := range spawns {
		agents = append(agents, s.Spawn(p, tick))
	}
	return agents
}

// Spawn creates a single agent standing on the floor at p.
func (s *Spawner) Spawn(p world.Vec3, tick uint64) *Agent {
	id := s.nextID
	s.nextID++

	a := New(id, s.generateName(), p, s.depth)
	a.SpawnTick = tick

	// Face a random heading so a fresh arena doesn't look drilled.
	yaw := s.rng.Float64() * 2 * math.Pi
	a.Body.Facing = world.Vec3{X: math.Sin(yaw), Z: math.Cos(yaw)}
	return a
}

// Restore rebuilds an agent loaded from storage, keeping the ID sequence ahead of it.
func (s *Spawner) Restore(a *Agent) *Agent {
	if a.Advisor == nil {
		a.Advisor = NewAdvisor(s.depth)
	}
	if a.ID >= s.nextID {
		s.nextID = a.ID + 1
	}
	return a
}

func (s *Spawner) generateName() string {
	first := firstNames[s.rng.Intn(len(firstNames))]
	last := lastNames[s.rng.Intn(len(lastNames))]
	return first + " " + last
}

// Name pools for procedural generation.
var firstNames = []string{
	"Bimble", "Dorf", "Fizzle", "Gump", "Hubert", "Igor", "Jorts",
	"Kevin", "Lumpy", "Mortimer", "Nerd", "Oswald", "Pip", "Quimby",
	"Rupert", "Snood", "Toby", "Ulf", "Vern", "Wendell", "Yorick",
	"Agnes", "Bertha", "Clementine", "Doris", "Edna", "Fern", "Gertie",
	"Hilda", "Ida", "Mildred", "Nell", "Opal", "Prudence", "Wilma",
}

var lastNames = []string{
	"Snorebottom", "McNap", "Pillowfort", "Dozewell", "Yawnsworth",
	"Inkblot", "Quillsby", "Deskworth", "Papercut", "Blanketson",
	"Snoozington", "Scribbles", "Nodsalot", "Drowsley", "Bedhead",
	"Slumberton", "Ledger", "Footnote", "Margin", "Stapler",
}
