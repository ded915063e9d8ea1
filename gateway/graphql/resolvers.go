package graphql

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/c360/ciboard/artifact"
	"github.com/c360/ciboard/errors"
	"github.com/c360/ciboard/gating"
	"github.com/c360/ciboard/metric"
	"github.com/c360/ciboard/search"
	"github.com/c360/ciboard/thread"
	"github.com/c360/ciboard/upstream/greenwave"
	"github.com/c360/ciboard/upstream/waiverdb"
)

// DecisionClient asks the policy engine for gating decisions
type DecisionClient interface {
	Decision(ctx context.Context, req greenwave.DecisionRequest) (*greenwave.Decision, error)
}

// WaiverClient lists waivers
type WaiverClient interface {
	Waivers(ctx context.Context, q waiverdb.WaiversQuery) (*waiverdb.WaiversPage, error)
}

// BuildSystem reads builds, tags and tasks from a Koji hub
type BuildSystem interface {
	GetBuild(ctx context.Context, instance string, buildID int64) (map[string]any, error)
	ListTags(ctx context.Context, instance string, buildID int64) ([]map[string]any, error)
	GetTaskInfo(ctx context.Context, instance string, taskID int64) (map[string]any, error)
}

// ModuleBuildSystem reads module builds
type ModuleBuildSystem interface {
	Build(ctx context.Context, instance string, buildID int64) (map[string]any, error)
}

// SourceControl reads commit metadata
type SourceControl interface {
	CommitInfo(ctx context.Context, instance, namespace, repo, sha string) (map[string]any, error)
}

// Backends are the collaborators behind the schema. A nil backend makes
// its fields fail with a configuration error.
type Backends struct {
	Search    search.Searcher
	Greenwave DecisionClient
	WaiverDB  WaiverClient
	Koji      BuildSystem
	MBS       ModuleBuildSystem
	DistGit   SourceControl
}

// Resolver holds the field resolvers of the dashboard schema.
type Resolver struct {
	backends Backends
	search   search.Config
	logger   *slog.Logger
	metrics  *metric.Metrics
}

// NewResolver creates the resolver set. searchConfig must be validated.
func NewResolver(backends Backends, searchConfig search.Config, logger *slog.Logger, metrics *metric.Metrics) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		backends: backends,
		search:   searchConfig,
		logger:   logger.With("component", "resolver"),
		metrics:  metrics,
	}
}

// Resolvers returns the resolver table. Result objects (ArtifactsResult,
// Child, GreenwaveDecision, WaiverDbPage) use the default resolver over
// their json field names.
func (r *Resolver) Resolvers() Resolvers {
	return Resolvers{
		"Query": {
			"artifacts":         r.artifacts,
			"artifactChildren":  r.artifactChildren,
			"greenwaveDecision": r.greenwaveDecision,
			"waiverDbWaivers":   r.waiverDbWaivers,
			"kojiBuild":         r.kojiBuild,
			"kojiBuildTags":     r.kojiBuildTags,
			"kojiTask":          r.kojiTask,
			"mbsBuild":          r.mbsBuild,
			"distgitCommit":     r.distgitCommit,
		},
		"Artifact": {
			"children":       r.children,
			"gatingDecision": r.gatingDecision,
		},
	}
}

func notConfigured(backend string) error {
	return errors.WrapFatal(errors.ErrMissingConfig, "graphql", backend, "resolve field")
}

// contain applies the partial failure policy. Fatal errors (missing
// configuration) and rejected arguments reach the caller as a field error.
// Anything else is logged and the field resolves to null.
func (r *Resolver) contain(p ResolveParams, err error) (any, error) {
	if errors.IsFatal(err) || stderrors.Is(err, errors.ErrInvalidData) {
		return nil, err
	}

	p.Logger.Error("Backend call failed, field resolves to null",
		"field", p.FieldName,
		"path", p.Path.String(),
		"class", errors.Classify(err).String(),
		"error", err)
	r.metrics.RecordSwallowed(p.FieldName)
	return nil, nil
}

func (r *Resolver) execute(ctx context.Context, req search.Request) (search.Result, error) {
	if r.backends.Search == nil {
		return search.Result{}, notConfigured("search")
	}
	resp, err := r.backends.Search.Search(ctx, req)
	if err != nil {
		return search.Result{}, err
	}
	return search.Envelope(resp), nil
}

func (r *Resolver) artifacts(ctx context.Context, p ResolveParams) (any, error) {
	types, err := artifact.ParseTypes(argStrings(p.Args, "artTypes"))
	if err != nil {
		return nil, inputError(p.FieldName, err)
	}

	req, err := search.BuildArtifactsQuery(search.ArtifactsOptions{
		SortBy:      argString(p.Args, "sortBy"),
		ArtTypes:    types,
		QueryString: argString(p.Args, "queryString"),
		Size:        r.search.ClampSize(argInt(p.Args, "paginationSize")),
		From:        argInt(p.Args, "paginationFrom"),
	}, r.search.IndexPrefix)
	if err != nil {
		return nil, inputError(p.FieldName, err)
	}

	result, err := r.execute(ctx, req)
	if err != nil {
		return r.contain(p, err)
	}
	return result, nil
}

func (r *Resolver) artifactChildren(ctx context.Context, p ResolveParams) (any, error) {
	var parentType artifact.Type
	if raw := argString(p.Args, "atype"); raw != "" {
		t, err := artifact.ParseType(raw)
		if err != nil {
			return nil, inputError(p.FieldName, err)
		}
		parentType = t
	}

	return r.childrenOf(ctx, p, search.ChildrenOptions{
		ParentID:   argString(p.Args, "parentDocId"),
		ParentType: parentType,
		ChildType:  argString(p.Args, "childrenType"),
		Size:       r.search.ClampSize(argInt(p.Args, "size")),
		From:       argInt(p.Args, "from"),
	}, argBool(p.Args, "onlyActual"))
}

func (r *Resolver) children(ctx context.Context, p ResolveParams) (any, error) {
	hit, ok := p.Source.(search.Hit)
	if !ok {
		return nil, nil
	}

	parentType, err := artifact.ParseType(hit.SourceString("type"))
	if err != nil {
		// search all artifact indexes rather than none
		p.Logger.Warn("Artifact has unknown type, children looked up in every index",
			"doc_id", hit.ID(), "type", hit.SourceString("type"))
		r.metrics.RecordIntegrityFailure("artifact_type")
		parentType = ""
	}

	return r.childrenOf(ctx, p, search.ChildrenOptions{
		ParentID:   hit.ID(),
		ParentType: parentType,
		ChildType:  argString(p.Args, "childrenType"),
		Size:       r.search.ClampSize(argInt(p.Args, "size")),
		From:       argInt(p.Args, "from"),
	}, argBool(p.Args, "onlyActual"))
}

func (r *Resolver) childrenOf(ctx context.Context, p ResolveParams, opts search.ChildrenOptions, onlyActual bool) (any, error) {
	req, err := search.BuildChildrenQuery(opts, r.search.IndexPrefix)
	if err != nil {
		return nil, inputError(p.FieldName, err)
	}

	result, err := r.execute(ctx, req)
	if err != nil {
		return r.contain(p, err)
	}

	if onlyActual {
		latest := thread.ReduceToLatest(p.Logger, r.metrics, result.Hits)
		result = search.Result{Hits: latest, HitsInfo: result.HitsInfo}.WithTotal(len(latest))
	}
	return result, nil
}

// gatingDecision resolves to null for artifacts that cannot be gated,
// without any network call. Eligible artifacts delegate to
// greenwaveDecision with the caller's selection.
func (r *Resolver) gatingDecision(ctx context.Context, p ResolveParams) (any, error) {
	hit, ok := p.Source.(search.Hit)
	if !ok {
		return nil, nil
	}

	a, err := artifact.FromSource(hit.Source)
	if err != nil {
		p.Logger.Warn("Artifact has unknown type, no gating decision",
			"doc_id", hit.ID(), "error", err)
		return nil, nil
	}
	if !gating.CanBeGated(a) {
		return nil, nil
	}

	req, err := gating.BuildRequest(a)
	if err != nil {
		p.Logger.Warn("Cannot build gating request", "artifact", a.String(), "error", err)
		r.metrics.RecordIntegrityFailure("gating_identifier")
		return nil, nil
	}

	return p.Dispatcher.Delegate(ctx, DelegateRequest{
		Operation: "greenwaveDecision",
		Args:      decisionArgs(req),
		Selection: p.Selection,
		Path:      p.Path,
	})
}

// decisionArgs renders a request in the argument shape of greenwaveDecision
func decisionArgs(req greenwave.DecisionRequest) map[string]any {
	subjects := make([]any, 0, len(req.Subject))
	for _, s := range req.Subject {
		subjects = append(subjects, map[string]any{"item": s.Item, "type": s.Type})
	}
	args := map[string]any{
		"product_version": req.ProductVersion,
		"subject":         subjects,
	}
	if req.DecisionContext != "" {
		args["decision_context"] = req.DecisionContext
	}
	if len(req.Rules) > 0 {
		rules := make([]any, 0, len(req.Rules))
		for _, rule := range req.Rules {
			rules = append(rules, map[string]any{"type": rule.Type, "test_case_name": rule.TestCaseName})
		}
		args["rules"] = rules
	}
	return args
}

// greenwaveDecision asks for verbose output only when the selection needs
// results or waivers.
func (r *Resolver) greenwaveDecision(ctx context.Context, p ResolveParams) (any, error) {
	if r.backends.Greenwave == nil {
		return nil, notConfigured("greenwave")
	}

	req := greenwave.DecisionRequest{
		DecisionContext: argString(p.Args, "decision_context"),
		ProductVersion:  argString(p.Args, "product_version"),
		Verbose:         p.Selects("results") || p.Selects("waivers"),
	}
	for _, s := range argObjects(p.Args, "subject") {
		req.Subject = append(req.Subject, greenwave.Subject{
			Item: argString(s, "item"),
			Type: argString(s, "type"),
		})
	}
	for _, rule := range argObjects(p.Args, "rules") {
		req.Rules = append(req.Rules, greenwave.Rule{
			Type:         argString(rule, "type"),
			TestCaseName: argString(rule, "test_case_name"),
		})
	}

	decision, err := r.backends.Greenwave.Decision(ctx, req)
	if err != nil {
		return r.contain(p, err)
	}
	return decision, nil
}

func (r *Resolver) waiverDbWaivers(ctx context.Context, p ResolveParams) (any, error) {
	if r.backends.WaiverDB == nil {
		return nil, notConfigured("waiverdb")
	}

	page, err := r.backends.WaiverDB.Waivers(ctx, waiverdb.WaiversQuery{
		SubjectType:       argString(p.Args, "subject_type"),
		SubjectIdentifier: argString(p.Args, "subject_identifier"),
		Testcase:          argString(p.Args, "testcase"),
		ProductVersion:    argString(p.Args, "product_version"),
		Page:              argInt(p.Args, "page"),
		Limit:             argInt(p.Args, "limit"),
	})
	if err != nil {
		return r.contain(p, err)
	}
	return page, nil
}

func (r *Resolver) kojiBuild(ctx context.Context, p ResolveParams) (any, error) {
	if r.backends.Koji == nil {
		return nil, notConfigured("koji")
	}
	id, _ := argInt64(p.Args, "buildId")
	build, err := r.backends.Koji.GetBuild(ctx, argString(p.Args, "instance"), id)
	if err != nil {
		return r.contain(p, err)
	}
	return build, nil
}

func (r *Resolver) kojiBuildTags(ctx context.Context, p ResolveParams) (any, error) {
	if r.backends.Koji == nil {
		return nil, notConfigured("koji")
	}
	id, _ := argInt64(p.Args, "buildId")
	tags, err := r.backends.Koji.ListTags(ctx, argString(p.Args, "instance"), id)
	if err != nil {
		return r.contain(p, err)
	}
	return tags, nil
}

func (r *Resolver) kojiTask(ctx context.Context, p ResolveParams) (any, error) {
	if r.backends.Koji == nil {
		return nil, notConfigured("koji")
	}
	id, _ := argInt64(p.Args, "taskId")
	task, err := r.backends.Koji.GetTaskInfo(ctx, argString(p.Args, "instance"), id)
	if err != nil {
		return r.contain(p, err)
	}
	return task, nil
}

func (r *Resolver) mbsBuild(ctx context.Context, p ResolveParams) (any, error) {
	if r.backends.MBS == nil {
		return nil, notConfigured("mbs")
	}
	id, _ := argInt64(p.Args, "buildId")
	build, err := r.backends.MBS.Build(ctx, argString(p.Args, "instance"), id)
	if err != nil {
		return r.contain(p, err)
	}
	return build, nil
}

func (r *Resolver) distgitCommit(ctx context.Context, p ResolveParams) (any, error) {
	if r.backends.DistGit == nil {
		return nil, notConfigured("distgit")
	}
	commit, err := r.backends.DistGit.CommitInfo(ctx,
		argString(p.Args, "instance"),
		argString(p.Args, "namespace"),
		argString(p.Args, "repoName"),
		argString(p.Args, "commitSha"))
	if err != nil {
		return r.contain(p, err)
	}
	return commit, nil
}
