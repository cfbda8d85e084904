package massimport

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"efm-go/internal/efm"
	"efm-go/internal/fileimport"
	"efm-go/internal/pipeline"
	"efm-go/internal/title"
)

// buildItemsFromDat creates one item per catalog entry whose roms are all
// present among the sources.
func buildItemsFromDat(ctx context.Context, c *massImportContext) pipeline.Action {
	type located struct {
		source string
		record *fileimport.Record
	}
	byHash := map[string]located{}
	for _, cand := range c.candidates {
		for _, r := range cand.records {
			key := r.SHA1.String()
			if _, ok := byHash[key]; !ok {
				byHash[key] = located{source: cand.path, record: r}
			}
		}
	}

	used := map[string]bool{}
	for i := range c.dat.Games {
		game := &c.dat.Games[i]
		if len(game.Roms) == 0 {
			continue
		}

		var members []member
		var warnings []string
		complete := true
		for _, rom := range game.Roms {
			loc, ok := byHash[rom.SHA1]
			if rom.SHA1 == "" || !ok {
				complete = false
				break
			}
			members = append(members, member{source: loc.source, record: loc.record, fileName: rom.Name})
			if loc.record.FileName != rom.Name {
				warnings = append(warnings, fmt.Sprintf("%s stored as %s", loc.record.FileName, rom.Name))
			}
		}
		if !complete {
			c.logger().Debug("dat entry incomplete", "game", game.Name)
			continue
		}

		for _, m := range members {
			used[m.source] = true
		}
		c.items = append(c.items, &importItem{
			name:      game.Name,
			canonical: game.Name + ".zip",
			game:      game,
			members:   members,
			warnings:  warnings,
		})
	}

	for _, cand := range c.candidates {
		if !used[cand.path] {
			c.result.Unmatched = append(c.result.Unmatched, cand.path)
		}
	}
	c.logger().Info("matched dat entries", "entries", len(c.items), "unmatched_sources", len(c.result.Unmatched))
	return pipeline.Continue
}

// buildItemsFromFileNames creates one item per source, named after the file.
func buildItemsFromFileNames(ctx context.Context, c *massImportContext) pipeline.Action {
	for _, cand := range c.candidates {
		it := &importItem{
			name:      title.FileSetName(cand.path),
			canonical: filepath.Base(cand.path),
		}
		for _, r := range cand.records {
			it.members = append(it.members, member{source: cand.path, record: r, fileName: r.FileName})
		}
		c.items = append(c.items, it)
	}
	return pipeline.Continue
}

// filterExistingFileSets marks items whose exact content is already a set.
func filterExistingFileSets(ctx context.Context, c *massImportContext) pipeline.Action {
	for _, it := range c.items {
		sets, err := c.deps.Repos.FileSets().FindByChecksumSet(ctx, it.checksums())
		if err != nil {
			return pipeline.Abort(err)
		}
		if len(sets) == 0 {
			continue
		}
		it.fileSet = sets[0]
		it.existing = true
		it.warnings = append(it.warnings, fmt.Sprintf("already in collection as %q", sets[0].Name))
	}
	return pipeline.Continue
}

func (it *importItem) checksums() []efm.Checksum {
	out := make([]efm.Checksum, 0, len(it.members))
	for _, m := range it.members {
		out = append(out, m.record.SHA1)
	}
	return out
}

// importFileSets stores the blobs of each new item and creates its set.
// A failing item is recorded and the next one is attempted.
func importFileSets(ctx context.Context, c *massImportContext) pipeline.Action {
	for _, it := range c.items {
		if it.existing {
			continue
		}
		if err := ctx.Err(); err != nil {
			return pipeline.Abort(efm.NewOperationCancelledError(err))
		}
		if err := c.importItem(ctx, it); err != nil {
			c.logger().Warn("importing file set failed", "file_set", it.name, "error", err)
			it.failed = err.Error()
			continue
		}
		c.logger().Info("file set imported", "file_set", it.name, "id", it.fileSet.ID)
	}
	return pipeline.Continue
}

func (c *massImportContext) importItem(ctx context.Context, it *importItem) error {
	bySource := map[string][]*fileimport.Record{}
	var order []string
	for _, m := range it.members {
		if _, ok := bySource[m.source]; !ok {
			order = append(order, m.source)
		}
		bySource[m.source] = append(bySource[m.source], m.record)
	}

	for _, src := range order {
		if err := c.storeSource(ctx, src, bySource[src]); err != nil {
			return err
		}
	}

	renamed := make([]*fileimport.Record, 0, len(it.members))
	for _, m := range it.members {
		r := *m.record
		r.FileName = m.fileName
		renamed = append(renamed, &r)
	}

	in := efm.NewFileSet{
		Name:              it.name,
		CanonicalFileName: it.canonical,
		FileType:          c.in.FileType,
		Source:            c.in.Dir,
		Members:           fileimport.Members(renamed, c.in.FileType),
	}
	if c.in.SystemID != 0 {
		in.SystemIDs = []int64{c.in.SystemID}
	}
	created, err := c.deps.Repos.FileSets().Create(ctx, in)
	if err != nil {
		return err
	}
	it.fileSet = created
	return nil
}

// storeSource writes the missing blobs among records from one source.
func (c *massImportContext) storeSource(ctx context.Context, path string, records []*fileimport.Record) error {
	deps := fileimport.Deps{
		Repos:      c.deps.Repos,
		Store:      c.deps.Store,
		OpenReader: c.deps.OpenReader,
		Logger:     c.deps.Logger,
	}
	if err := fileimport.MarkExisting(ctx, deps.Repos, deps.Store, c.in.FileType, records); err != nil {
		return err
	}
	if len(fileimport.PendingRecords(records)) == 0 {
		return nil
	}

	reader, err := c.deps.OpenReader(path)
	if err != nil {
		return efm.NewFileImportError("opening "+path, err)
	}
	defer reader.Close()
	_, err = fileimport.StoreRecords(ctx, deps, reader, c.in.FileType, records)
	return err
}

// linkFileSets attaches every matched set to a release named after its
// catalog entry, creating the release and its software title when needed.
func linkFileSets(ctx context.Context, c *massImportContext) pipeline.Action {
	titles, err := c.deps.Repos.SoftwareTitles().List(ctx)
	if err != nil {
		return pipeline.Abort(err)
	}
	byKey := make(map[string]*efm.SoftwareTitle, len(titles))
	for _, t := range titles {
		byKey[title.MatchKey(t.Name)] = t
	}
	parents := make(map[string]*efm.DatGame, len(c.dat.Games))
	for i := range c.dat.Games {
		parents[c.dat.Games[i].Name] = &c.dat.Games[i]
	}

	for _, it := range c.items {
		if it.fileSet == nil || it.game == nil {
			continue
		}
		if err := c.linkItem(ctx, it, parents, byKey); err != nil {
			c.logger().Warn("linking file set failed", "file_set", it.name, "error", err)
			it.warnings = append(it.warnings, "release not linked: "+err.Error())
		}
	}
	return pipeline.Continue
}

func (c *massImportContext) linkItem(ctx context.Context, it *importItem, parents map[string]*efm.DatGame, byKey map[string]*efm.SoftwareTitle) error {
	releaseName := displayName(it.game)
	titleSource := it.game
	if parent, ok := parents[it.game.CloneOf]; ok {
		titleSource = parent
	}
	titleName := title.SoftwareTitle(displayName(titleSource))

	rel, err := c.findRelease(ctx, releaseName, it.fileSet.ID)
	if err != nil {
		return err
	}
	if rel == nil {
		nr := efm.NewRelease{Name: releaseName}
		if t, ok := byKey[title.MatchKey(titleName)]; ok {
			nr.SoftwareTitleID = t.ID
		} else {
			t, err := c.deps.Repos.SoftwareTitles().Add(ctx, titleName)
			if err != nil {
				return err
			}
			byKey[title.MatchKey(titleName)] = t
			nr.SoftwareTitleID = t.ID
		}
		if c.in.SystemID != 0 {
			nr.SystemIDs = []int64{c.in.SystemID}
		}
		if rel, err = c.deps.Repos.Releases().Add(ctx, nr); err != nil {
			return err
		}
	}

	if err := c.deps.Repos.Releases().LinkFileSet(ctx, rel.ID, it.fileSet.ID); err != nil {
		return err
	}
	if c.in.ItemType == nil {
		return nil
	}
	items, err := c.deps.Repos.Releases().Items(ctx, rel.ID)
	if err != nil {
		return err
	}
	for _, ri := range items {
		if ri.ItemType == *c.in.ItemType && containsID(ri.FileSetIDs, it.fileSet.ID) {
			return nil
		}
	}
	_, err = c.deps.Repos.Releases().AddItem(ctx, rel.ID, *c.in.ItemType, []int64{it.fileSet.ID})
	return err
}

// findRelease looks for a release of the name already linked to the set,
// then for one on the target system.
func (c *massImportContext) findRelease(ctx context.Context, name string, fileSetID int64) (*efm.Release, error) {
	linked, err := c.deps.Repos.Releases().ListForFileSet(ctx, fileSetID)
	if err != nil {
		return nil, err
	}
	for _, r := range linked {
		if r.Name == name {
			return r, nil
		}
	}
	if c.in.SystemID == 0 {
		return nil, nil
	}
	return c.deps.Repos.Releases().FindByNameAndSystem(ctx, name, c.in.SystemID)
}

// displayName prefers the catalog description, which carries the full title.
func displayName(g *efm.DatGame) string {
	if d := strings.TrimSpace(g.Description); d != "" {
		return title.Normalize(d)
	}
	return title.Normalize(g.Name)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
