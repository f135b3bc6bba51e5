// Package tools exposes the repository and version operations through a
// single registry. Every operation takes string arguments and produces one
// Result, rendered to text at the host boundary.
package tools

// Operation names as exposed to hosts
const (
	OpSetRepositoryPath = "SetRepositoryPath"
	OpGetLatestCommits  = "GetLatestCommits"
	OpGetLatestVersion  = "GetLatestVersion"
	OpBumpPatchVersion  = "BumpPatchVersion"
)

// Argument names
const (
	ArgPath            = "path"
	ArgNumberOfCommits = "numberOfCommits"
)

// Argument describes one string argument of an operation
type Argument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Descriptor is what a host sees of an operation
type Descriptor struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Arguments   []Argument `json:"arguments"`
	Writes      bool       `json:"writes"`
}

var descriptors = []Descriptor{
	{
		Name:        OpSetRepositoryPath,
		Description: "Sets the Git repository path to use for later operations.",
		Arguments: []Argument{
			{Name: ArgPath, Description: "Absolute path to the repository root"},
		},
		Writes: true,
	},
	{
		Name:        OpGetLatestCommits,
		Description: "Gets the latest commits from the selected repository, newest first.",
		Arguments: []Argument{
			{Name: ArgNumberOfCommits, Description: "How many commits to return"},
		},
	},
	{
		Name:        OpGetLatestVersion,
		Description: "Gets the current version from version.txt in the selected repository.",
		Arguments:   []Argument{},
	},
	{
		Name:        OpBumpPatchVersion,
		Description: "Increments the patch component of version.txt, creating it at 1.0.0 when absent.",
		Arguments:   []Argument{},
		Writes:      true,
	},
}

// Describe returns the descriptors of all operations in registration order
func Describe() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	for i, d := range descriptors {
		d.Arguments = append([]Argument(nil), d.Arguments...)
		if d.Arguments == nil {
			d.Arguments = []Argument{}
		}
		out[i] = d
	}
	return out
}

// Lookup returns the descriptor for name
func Lookup(name string) (Descriptor, bool) {
	for _, d := range Describe() {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// IsWriteOperation reports whether an operation changes session or disk state
func IsWriteOperation(name string) bool {
	d, ok := Lookup(name)
	return ok && d.Writes
}
