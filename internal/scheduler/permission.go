package scheduler

import (
	"strings"

	"github.com/nexuscore/orchestrator/internal/contextpacket"
	"github.com/nexuscore/orchestrator/internal/dispatcher"
)

// PermissionPolicy implements §4.4 step 4's grant rule: grant if the
// requested path is in the same module as the task's declared files and
// not in the boundaries list, otherwise deny with an explanation.
type PermissionPolicy struct {
	Files contextpacket.FileReader
}

// Resolve decides a PERMISSION_REQUEST against the packet that was
// built for the requesting task.
func (p PermissionPolicy) Resolve(req dispatcher.PermissionRequestPayload, packet contextpacket.ContextPacket) (grant bool, content []byte, reason string) {
	for _, boundary := range packet.Boundaries {
		if strings.HasPrefix(req.Path, boundary) {
			return false, nil, "path is in the plan's boundaries (DO-NOT-TOUCH) list"
		}
	}
	for _, module := range packet.ArchitectureSlice {
		for _, f := range module.Files {
			if f == req.Path || strings.HasPrefix(req.Path, f+"/") {
				data, err := p.Files.ReadFile(req.Path)
				if err != nil {
					return true, nil, ""
				}
				return true, data, ""
			}
		}
	}
	return false, nil, "path is not in the same module as any declared file for this task"
}
