package kinematics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// NewKukaLWR4 returns the seven joint KUKA LWR 4+ chain with approximate link inertial data.
func NewKukaLWR4() *Chain {
	const halfPi = math.Pi / 2
	wide, narrow := deg(170), deg(120)
	return NewChain("kuka_lwr4",
		Link{Alpha: halfPi, D: 0.3105, Min: -wide, Max: wide, Mass: 2.7, CenterOfMass: mgl64.Vec3{0, -0.03, 0.12}},
		Link{Alpha: -halfPi, Min: -narrow, Max: narrow, Mass: 2.7, CenterOfMass: mgl64.Vec3{0, 0.12, 0.03}},
		Link{Alpha: -halfPi, D: 0.4, Min: -wide, Max: wide, Mass: 2.5, CenterOfMass: mgl64.Vec3{0, 0.03, 0.12}},
		Link{Alpha: halfPi, Min: -narrow, Max: narrow, Mass: 2.5, CenterOfMass: mgl64.Vec3{0, -0.12, 0.03}},
		Link{Alpha: halfPi, D: 0.39, Min: -wide, Max: wide, Mass: 1.3, CenterOfMass: mgl64.Vec3{0, -0.02, 0.1}},
		Link{Alpha: -halfPi, Min: -narrow, Max: narrow, Mass: 1.6, CenterOfMass: mgl64.Vec3{0, 0.005, 0.03}},
		Link{D: 0.078, Min: -wide, Max: wide, Mass: 0.3, CenterOfMass: mgl64.Vec3{0, 0, -0.02}},
	)
}
