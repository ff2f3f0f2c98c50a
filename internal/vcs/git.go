// Package vcs wraps the version-control operations the orchestrator needs:
// recording a ref, diffing against it, and committing/resetting on the
// private checkpoint reference namespace (§4.6, §6). It shells out to the
// git binary the same way the teacher's orchestrator package drives
// project commands -- exec.Command with captured stdout/stderr, never a
// library binding -- because the only durability contract this system
// needs is "git is on PATH and understands plumbing commands".
package vcs

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Repo is a thin handle on a single working tree.
type Repo struct {
	Dir string
}

// Open returns a handle for the repository rooted at dir. It does not
// verify dir is a repository; the first command run will fail clearly if
// not.
func Open(dir string) *Repo {
	return &Repo{Dir: dir}
}

func (r *Repo) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("vcs: git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// HeadRef returns the current HEAD commit hash, used as a TaskNode's
// recorded-before-run version-control ref (§3).
func (r *Repo) HeadRef() (string, error) {
	return r.run("rev-parse", "HEAD")
}

// DiffNonEmpty reports whether there is any change between ref and the
// current working tree, restricted to paths if given. It is the core of
// the spot-check (§4.4) and rung 1 physicality check (§4.5).
func (r *Repo) DiffNonEmpty(ref string, paths ...string) (bool, error) {
	args := []string{"diff", "--name-only", ref}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}
	out, err := r.run(args...)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(out) != "" {
		return true, nil
	}
	// git diff leaves untracked files out; a newly created file is a
	// change too.
	untracked := append([]string{"ls-files", "--others", "--exclude-standard"}, args[3:]...)
	out, err = r.run(untracked...)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// Diff returns the full textual diff between ref and the current working
// tree, shown to the human before a rollback is confirmed (§4.6).
func (r *Repo) Diff(ref string) (string, error) {
	return r.run("diff", ref)
}

// ChangedFiles returns every path that differs between ref and the current
// working tree, used by rung 1 to detect undeclared writes.
func (r *Repo) ChangedFiles(ref string) ([]string, error) {
	out, err := r.run("diff", "--name-only", ref)
	if err != nil {
		return nil, err
	}
	untracked, err := r.run("ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out + "\n" + untracked)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CheckpointRefNamespace is the private reference namespace checkpoints
// live on (§6): never the working branch.
const CheckpointRefNamespace = "refs/nexus/checkpoints"

// Checkpoint stages all changes and commits them to a dedicated ref under
// CheckpointRefNamespace, returning the new commit hash. The working
// branch is left untouched.
func (r *Repo) Checkpoint(checkpointID, reason string) (string, error) {
	if _, err := r.run("add", "-A"); err != nil {
		return "", err
	}
	treeHash, err := r.run("write-tree")
	if err != nil {
		return "", err
	}
	parent, err := r.HeadRef()
	if err != nil {
		return "", err
	}
	message := fmt.Sprintf("checkpoint %s: %s", checkpointID, reason)
	commitHash, err := r.run("commit-tree", treeHash, "-p", parent, "-m", message)
	if err != nil {
		return "", err
	}
	ref := fmt.Sprintf("%s/%s", CheckpointRefNamespace, checkpointID)
	if _, err := r.run("update-ref", ref, commitHash); err != nil {
		return "", err
	}
	return commitHash, nil
}

// Rollback resets the working tree to target, the commit recorded by a
// checkpoint (§4.6 Rollback).
func (r *Repo) Rollback(target string) error {
	_, err := r.run("reset", "--hard", target)
	return err
}

// QuarantineDiff writes the diff between the working tree and ref to path,
// used to preserve a rejected attempt under artifacts/ before rollback
// (§4.6).
func (r *Repo) QuarantineDiff(ref, path string) error {
	out, err := r.run("diff", ref)
	if err != nil {
		return err
	}
	return writeFile(path, []byte(out))
}
