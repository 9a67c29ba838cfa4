package snapshot

import "fmt"

// Section is one independently exportable category of process state.
type Section int

const (
	SectionControlBlock Section = iota
	SectionMemoryMap
)

type sectionInfo struct {
	bit      Command
	name     string
	filename string
}

// sectionTable is ordered canonically: sections are always attempted in
// this order regardless of how the request mask was built.
var sectionTable = [...]sectionInfo{
	SectionControlBlock: {bit: CommandControlBlock, name: "control_block", filename: "task_struct.txt"},
	SectionMemoryMap:    {bit: CommandMemoryMap, name: "memory_map", filename: "task_memory_struct.txt"},
}

// Sections returns every section in canonical order.
func Sections() []Section {
	out := make([]Section, len(sectionTable))
	for i := range sectionTable {
		out[i] = Section(i)
	}
	return out
}

// Requested returns the sections selected by c in canonical order.
func (c Command) Requested() []Section {
	var out []Section
	for _, s := range Sections() {
		if c.Has(s.Bit()) {
			out = append(out, s)
		}
	}
	return out
}

func (s Section) valid() bool {
	return s >= 0 && int(s) < len(sectionTable)
}

// Bit returns the command bit selecting s.
func (s Section) Bit() Command {
	if !s.valid() {
		return 0
	}
	return sectionTable[s].bit
}

// Filename returns the fixed output filename of s.
func (s Section) Filename() string {
	if !s.valid() {
		return ""
	}
	return sectionTable[s].filename
}

func (s Section) String() string {
	if !s.valid() {
		return fmt.Sprintf("unknown(%d)", int(s))
	}
	return sectionTable[s].name
}

// ParseSection maps a section name to its Section.
func ParseSection(name string) (Section, error) {
	for _, s := range Sections() {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown section %q", name)
}
