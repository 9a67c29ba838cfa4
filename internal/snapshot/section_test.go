package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_Requested(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want []Section
	}{
		{"none", 0, nil},
		{"control block", CommandControlBlock, []Section{SectionControlBlock}},
		{"memory map", CommandMemoryMap, []Section{SectionMemoryMap}},
		{"both", CommandMemoryMap | CommandControlBlock, []Section{SectionControlBlock, SectionMemoryMap}},
		{"reserved only", 0x80, nil},
		{"reserved ignored", 0xf0 | CommandMemoryMap, []Section{SectionMemoryMap}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cmd.Requested())
		})
	}
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "none", Command(0).String())
	assert.Equal(t, "control_block|memory_map", Command(0x3).String())
	assert.Equal(t, "memory_map|reserved(0x10)", Command(0x12).String())
	assert.Equal(t, Command(0x10), Command(0x13).Reserved())
}

func TestSection_Table(t *testing.T) {
	assert.Equal(t, []Section{SectionControlBlock, SectionMemoryMap}, Sections())

	assert.Equal(t, "task_struct.txt", SectionControlBlock.Filename())
	assert.Equal(t, "task_memory_struct.txt", SectionMemoryMap.Filename())
	assert.Equal(t, CommandControlBlock, SectionControlBlock.Bit())
	assert.Equal(t, CommandMemoryMap, SectionMemoryMap.Bit())

	invalid := Section(9)
	assert.Empty(t, invalid.Filename())
	assert.Zero(t, invalid.Bit())
	assert.Equal(t, "unknown(9)", invalid.String())
}

func TestParseSection(t *testing.T) {
	for _, s := range Sections() {
		got, err := ParseSection(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseSection("registers")
	assert.Error(t, err)
}
