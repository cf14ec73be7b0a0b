// Package nomenclaturetest provides a small but complete nomenclature release for tests.
package nomenclaturetest

import (
	"embed"
	"io/fs"
	"path"
	"strings"

	"github.com/hla-matching-engine/internal/nomenclature"
)

// Version is the release identifier of the fixture.
const Version = "3330"

// SkippedLines is the number of deliberately malformed lines in the fixture, per file.
var SkippedLines = map[string]int{
	nomenclature.FileAlleleList:   1,
	nomenclature.FileAlleleStatus: 1,
	nomenclature.FileGGroups:      1,
	nomenclature.FileSerologyRels: 1,
	nomenclature.FileDpb1Tce:      1,
	nomenclature.FileNmdpCodes:    2,
}

//go:embed fixtures
var fixtures embed.FS

// Dir is the fixture root relative to this package, laid out as <Dir>/<version>/<file>.
const Dir = "fixtures"

// Source returns an in-memory source serving the fixture release under Version.
func Source() *nomenclature.MemorySource {
	return SourceAs(Version)
}

// SourceAs serves the fixture release under one or more arbitrary version names.
func SourceAs(versions ...string) *nomenclature.MemorySource {
	src := nomenclature.NewMemorySource()
	for _, version := range versions {
		put(src, version)
	}
	return src
}

func put(src *nomenclature.MemorySource, version string) {
	root := path.Join(Dir, Version)
	err := fs.WalkDir(fixtures, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		content, err := fixtures.ReadFile(p)
		if err != nil {
			return err
		}
		src.Put(version, strings.TrimPrefix(p, root+"/"), string(content))
		return nil
	})
	if err != nil {
		panic(err)
	}
}
