// Package queues describes the queue families of an adapter as plain
// values, decoupled from the Vulkan handles they were queried from.
package queues

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/alcor-engine/alcor/optional"
)

// Family is a snapshot of one queue family on an adapter.
type Family struct {
	// Index is the family's position in the adapter's family table.
	Index uint32

	// Flags are the capability bits of the family.
	Flags vk.QueueFlags

	// CanPresent reports whether the family can present to the target
	// surface.
	CanPresent bool
}

// FamilyIndices holds the indexes of the Vulkan queue families needed by the
// presentation core.
type FamilyIndices struct {

	// Graphics is the index of the graphics queue family.
	Graphics optional.Optional[uint32]

	// Present is the index of the queue family used for presenting to the drawing
	// surface.
	Present optional.Optional[uint32]
}

// IsComplete returns true if all families have been set.
func (f *FamilyIndices) IsComplete() bool {
	return f.Graphics.HasValue() && f.Present.HasValue()
}

// FindCombined returns the first family carrying every capability flag
// which, when present is demanded, can also present to the target
// surface. The presentation protocol runs on a single combined family.
func FindCombined(families []Family, flags vk.QueueFlags, present bool) (uint32, bool) {
	for _, family := range families {
		if family.Flags&flags != flags {
			continue
		}
		if present && !family.CanPresent {
			continue
		}
		return family.Index, true
	}

	return 0, false
}

// FindIndices returns the first graphics capable and first presentation
// capable family indices found in the table.
func FindIndices(families []Family) FamilyIndices {
	indices := FamilyIndices{}

	for _, family := range families {
		if !indices.Graphics.HasValue() &&
			family.Flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			indices.Graphics.Set(family.Index)
		}

		if !indices.Present.HasValue() && family.CanPresent {
			indices.Present.Set(family.Index)
		}

		if indices.IsComplete() {
			break
		}
	}

	return indices
}
