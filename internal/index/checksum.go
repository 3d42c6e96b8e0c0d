package index

import (
	"hash/fnv"
	"strconv"
)

// checksum computes a deterministic FNV-1a hash over an entry's content
// fields: identity, name, description, assigned pins, device types, and
// both metadata blocks. Consistency fields and the timestamp are excluded
// so re-stamping an unchanged entry keeps the same checksum.
func checksum(e *Entry) uint64 {
	h := fnv.New64a()

	writeField := func(s string) {
		h.Write([]byte(s)) //nolint:errcheck // fnv never errors
		h.Write([]byte{0}) //nolint:errcheck
	}

	writeField(e.DeviceID)
	writeField(e.SubzoneID)
	writeField(e.Zone)
	writeField(e.Name)
	writeField(e.Description)

	for _, pin := range e.AssignedPins {
		writeField(strconv.Itoa(pin))
	}
	for _, t := range e.DeviceTypes {
		writeField(t)
	}

	writeField(strconv.FormatBool(e.CrossDevice.MultiDevice))
	for _, id := range e.CrossDevice.LogicIDs {
		writeField(id)
	}

	writeField(e.Hierarchy.ParentZone)
	for _, id := range e.Hierarchy.SiblingIDs {
		writeField(id)
	}
	for _, id := range e.Hierarchy.ChildDevices {
		writeField(id)
	}

	return h.Sum64()
}
