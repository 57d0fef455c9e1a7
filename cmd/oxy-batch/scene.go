package main

import (
	"cmp"
	"slices"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-batch/common"
	"github.com/Carmen-Shannon/oxy-batch/engine/mesh"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
)

const (
	gridSpacing = 2.5
	groundScale = 4.0
)

// gridMasks are cycled across the grid so every frame needs several shader variants.
var gridMasks = []shader.FeatureMask{
	0,
	shader.FeatureTexture,
	shader.FeatureTexture | shader.FeatureSpecular,
	shader.FeatureTexture | shader.FeatureNormalMap | shader.FeatureSpecular,
	shader.FeatureTexture | shader.FeatureFog,
}

type gridObject struct {
	origin [3]float32
	scale  float32
	angle  float32
	spin   float32 // radians per second; zero for static objects
}

// gridScene is the viewer's instance list: a static ground tile under every cell and a spinning
// object on top of it. Instances are ordered by mesh and features so they batch into long runs.
type gridScene struct {
	instances []pass.DrawInstance
	objects   []gridObject
	paused    atomic.Bool
	sorted    bool
}

// newGridScene lays out side×side cells. The ground uses the last mesh; objects cycle through the
// others (or the same mesh when only one is loaded).
func newGridScene(meshes []*mesh.Handle, side int, texture, normalMap renderer.TextureHandle, sorted bool) *gridScene {
	s := &gridScene{sorted: sorted}
	if len(meshes) == 0 || side <= 0 {
		return s
	}
	ground := meshes[len(meshes)-1]
	objects := meshes
	if len(meshes) > 1 {
		objects = meshes[:len(meshes)-1]
	}

	half := float32(side-1) * gridSpacing / 2
	for z := range side {
		for x := range side {
			cell := z*side + x
			pos := [3]float32{float32(x)*gridSpacing - half, 0, float32(z)*gridSpacing - half}

			s.add(pass.DrawInstance{
				Mesh:      ground,
				Texture:   texture,
				NormalMap: normalMap,
				Features:  shader.FeatureTexture,
				Static:    true,
			}, gridObject{origin: pos, scale: gridSpacing})

			s.add(pass.DrawInstance{
				Mesh:      objects[cell%len(objects)],
				Texture:   texture,
				NormalMap: normalMap,
				Features:  gridMasks[cell%len(gridMasks)],
			}, gridObject{
				origin: [3]float32{pos[0], 0.75, pos[2]},
				scale:  1,
				angle:  float32(cell) * 0.37,
				spin:   0.5 + float32(cell%7)*0.25,
			})
		}
	}

	if sorted {
		order := make([]int, len(s.instances))
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int {
			ia, ib := &s.instances[a], &s.instances[b]
			if c := cmp.Compare(ia.Mesh.FirstIndex(), ib.Mesh.FirstIndex()); c != 0 {
				return c
			}
			return cmp.Compare(ia.Features, ib.Features)
		})
		instances := make([]pass.DrawInstance, len(order))
		objs := make([]gridObject, len(order))
		for i, j := range order {
			instances[i], objs[i] = s.instances[j], s.objects[j]
		}
		s.instances, s.objects = instances, objs
	}
	s.update(0)
	return s
}

func (s *gridScene) add(inst pass.DrawInstance, obj gridObject) {
	s.instances = append(s.instances, inst)
	s.objects = append(s.objects, obj)
}

// update advances the spinning objects and rebuilds their transforms.
func (s *gridScene) update(dt float32) {
	if s.paused.Load() {
		dt = 0
	}
	for i := range s.objects {
		o := &s.objects[i]
		o.angle += o.spin * dt
		common.BuildModelMatrix(s.instances[i].LocalToWorld[:],
			o.origin[0], o.origin[1], o.origin[2],
			0, o.angle, 0,
			o.scale, o.scale, o.scale)
	}
}

// counts returns the number of static and dynamic instances.
func (s *gridScene) counts() (static, dynamic int) {
	for i := range s.instances {
		if s.instances[i].Static {
			static++
		} else {
			dynamic++
		}
	}
	return static, dynamic
}
