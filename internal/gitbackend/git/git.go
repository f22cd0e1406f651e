// Package git implements gitbackend.Backend by shelling out to the local
// git binary's plumbing commands (cat-file, hash-object, update-ref,
// show-ref). It never touches a pack file directly; every object and ref
// operation goes through a git subprocess.
package git

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jjcore/jjcore/internal/gitbackend"
	"github.com/jjcore/jjcore/internal/jjerrors"
)

// Backend shells out to a git binary rooted at repoRoot.
type Backend struct {
	repoRoot string
	remote   string
}

// New returns a Backend rooted at repoRoot. remote, if non-empty, names
// the git remote used by Fetch/Push.
func New(repoRoot, remote string) *Backend {
	return &Backend{repoRoot: repoRoot, remote: remote}
}

func (b *Backend) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = b.repoRoot
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, jjerrors.Newf(jjerrors.CodeBackendNotAvailable, "git %s: %v: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func (b *Backend) GetObject(ctx context.Context, oid string) (gitbackend.Object, error) {
	typOut, err := b.run(ctx, nil, "cat-file", "-t", oid)
	if err != nil {
		return gitbackend.Object{}, jjerrors.Newf(jjerrors.CodeNotFound, "object %s not found", oid)
	}
	data, err := b.run(ctx, nil, "cat-file", "-p", oid)
	if err != nil {
		return gitbackend.Object{}, err
	}
	return gitbackend.Object{
		Type: gitbackend.ObjectType(strings.TrimSpace(string(typOut))),
		Data: data,
	}, nil
}

func (b *Backend) PutObject(ctx context.Context, typ gitbackend.ObjectType, data []byte) (string, error) {
	out, err := b.run(ctx, data, "hash-object", "-w", "-t", string(typ), "--stdin")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (b *Backend) ReadRef(ctx context.Context, name string) (string, error) {
	out, err := b.run(ctx, nil, "show-ref", "--verify", "--hash", name)
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(string(out)), nil
}

func (b *Backend) UpdateRef(ctx context.Context, name, oid string) error {
	if oid == "" {
		_, err := b.run(ctx, nil, "update-ref", "-d", name)
		return err
	}
	_, err := b.run(ctx, nil, "update-ref", name, oid)
	return err
}

func (b *Backend) ListRefs(ctx context.Context, prefix string) ([]string, error) {
	args := []string{"show-ref"}
	if prefix != "" {
		args = append(args, prefix)
	}
	out, err := b.run(ctx, nil, args...)
	if err != nil {
		// show-ref exits non-zero when nothing matches; treat as empty.
		return nil, nil
	}
	var refs []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 2 {
			refs = append(refs, fields[1])
		}
	}
	return refs, nil
}

func (b *Backend) CreateCommit(ctx context.Context, spec gitbackend.CommitSpec) (string, error) {
	args := []string{"commit-tree", spec.Tree}
	for _, p := range spec.Parents {
		args = append(args, "-p", p)
	}
	args = append(args, "-m", spec.Message)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = b.repoRoot
	cmd.Env = append(cmd.Environ(),
		"GIT_AUTHOR_NAME="+spec.Author.Name,
		"GIT_AUTHOR_EMAIL="+spec.Author.Email,
		"GIT_AUTHOR_DATE="+strconv.FormatInt(spec.Author.Timestamp, 10),
		"GIT_COMMITTER_NAME="+spec.Committer.Name,
		"GIT_COMMITTER_EMAIL="+spec.Committer.Email,
		"GIT_COMMITTER_DATE="+strconv.FormatInt(spec.Committer.Timestamp, 10),
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", jjerrors.Newf(jjerrors.CodeBackendNotAvailable, "git commit-tree: %v: %s", err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (b *Backend) Fetch(ctx context.Context, req gitbackend.FetchRequest) (gitbackend.FetchResult, error) {
	remote := req.Remote
	if remote == "" {
		remote = b.remote
	}
	if remote == "" {
		return gitbackend.FetchResult{}, jjerrors.New(jjerrors.CodeNetworkNotAvailable, "no remote configured")
	}
	args := append([]string{"fetch", remote}, req.Refs...)
	out, err := b.run(ctx, nil, args...)
	if err != nil {
		return gitbackend.FetchResult{}, jjerrors.Newf(jjerrors.CodeFetchFailed, "fetch %s: %v", remote, err)
	}
	return gitbackend.FetchResult{Fetched: req.Refs, Updated: parseFetchOutput(string(out))}, nil
}

func parseFetchOutput(out string) map[string]string {
	updated := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 {
			updated[parts[len(parts)-1]] = parts[0]
		}
	}
	return updated
}

func (b *Backend) Push(ctx context.Context, req gitbackend.PushRequest) (gitbackend.PushResult, error) {
	remote := req.Remote
	if remote == "" {
		remote = b.remote
	}
	if remote == "" {
		return gitbackend.PushResult{}, jjerrors.New(jjerrors.CodeNetworkNotAvailable, "no remote configured")
	}
	args := []string{"push"}
	if req.Force {
		args = append(args, "--force")
	}
	args = append(args, remote)
	args = append(args, req.Refs...)

	out, err := b.run(ctx, nil, args...)
	if err != nil {
		if strings.Contains(err.Error(), "rejected") {
			return gitbackend.PushResult{Rejected: map[string]string{strings.Join(req.Refs, ","): err.Error()}},
				jjerrors.Newf(jjerrors.CodePushRejected, "push to %s rejected: %v", remote, err)
		}
		return gitbackend.PushResult{}, jjerrors.Newf(jjerrors.CodePushFailed, "push to %s: %v", remote, err)
	}
	_ = out
	return gitbackend.PushResult{Pushed: req.Refs}, nil
}
