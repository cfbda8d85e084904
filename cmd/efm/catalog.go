package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"efm-go/internal/efm"

	"github.com/spf13/cobra"
)

// crudCommand runs fn against a freshly opened app. Mutating commands are
// recorded in the history and marked failed when fn returns an error.
func crudCommand(use, short, operation string, nargs int, mutates bool, fn func(cmd *cobra.Command, repos efm.Repositories, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			open := newApp
			if mutates {
				open = mutating
			}
			a, err := open(cmd, operation, args)
			if err != nil {
				return err
			}
			defer a.Close()
			defer func() { a.Fail(err) }()

			return fn(cmd, a.Service().Repos(), args)
		},
	}
}

func systemNames(cmd *cobra.Command, repos efm.Repositories, ids []int64) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		sys, err := repos.Systems().Get(cmd.Context(), id)
		if err != nil || sys == nil {
			names = append(names, "#"+strconv.FormatInt(id, 10))
			continue
		}
		names = append(names, sys.Name)
	}
	return strings.Join(names, ", ")
}

var systemCmd = &cobra.Command{Use: "system", Short: "Manage systems"}

var systemAddCmd = crudCommand("add NAME", "Add a system", "AddSystem", 1, true,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		sys, err := repos.Systems().Add(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("#%d %s\n", sys.ID, sys.Name)
		return nil
	})

var systemListCmd = crudCommand("list", "List systems", "ListSystems", 0, false,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		systems, err := repos.Systems().List(cmd.Context())
		if err != nil {
			return err
		}
		for _, sys := range systems {
			fmt.Printf("#%d %s\n", sys.ID, sys.Name)
		}
		return nil
	})

var systemRenameCmd = crudCommand("rename ID NAME", "Rename a system", "UpdateSystem", 2, true,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return repos.Systems().Update(cmd.Context(), &efm.System{ID: id, Name: args[1]})
	})

var systemDeleteCmd = crudCommand("delete ID", "Delete an unused system", "DeleteSystem", 1, true,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return repos.Systems().Delete(cmd.Context(), id)
	})

var titleCmd = &cobra.Command{Use: "title", Short: "Manage software titles"}

var titleAddCmd = crudCommand("add NAME", "Add a software title", "AddSoftwareTitle", 1, true,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		t, err := repos.SoftwareTitles().Add(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("#%d %s\n", t.ID, t.Name)
		return nil
	})

var titleListCmd = crudCommand("list", "List software titles", "ListSoftwareTitles", 0, false,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		titles, err := repos.SoftwareTitles().List(cmd.Context())
		if err != nil {
			return err
		}
		for _, t := range titles {
			fmt.Printf("#%d %s\n", t.ID, t.Name)
		}
		return nil
	})

var titleDeleteCmd = crudCommand("delete ID", "Delete a software title", "DeleteSoftwareTitle", 1, true,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return repos.SoftwareTitles().Delete(cmd.Context(), id)
	})

var releaseCmd = &cobra.Command{Use: "release", Short: "Manage releases"}

var releaseAddCmd = crudCommand("add NAME", "Add a release", "AddRelease", 1, true,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		systems, err := systemsFlag(cmd)
		if err != nil {
			return err
		}
		title, _ := cmd.Flags().GetString("title")
		r, err := repos.Releases().Add(cmd.Context(), efm.NewRelease{
			Name:              args[0],
			SoftwareTitleName: title,
			SystemIDs:         systems,
		})
		if err != nil {
			return err
		}
		fmt.Printf("#%d %s\n", r.ID, r.Name)
		return nil
	})

var releaseListCmd = crudCommand("list", "List releases", "ListReleases", 0, false,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		releases, err := repos.Releases().List(cmd.Context())
		if err != nil {
			return err
		}
		for _, r := range releases {
			fmt.Printf("#%d %s [%s]\n", r.ID, r.Name, systemNames(cmd, repos, r.SystemIDs))
		}
		return nil
	})

var releaseShowCmd = crudCommand("show ID", "Show a release with its items", "GetRelease", 1, false,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		r, err := repos.Releases().Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		if r == nil {
			return efm.NewInvalidInputError(fmt.Sprintf("release %d not found", id))
		}
		fmt.Printf("#%d %s [%s]\n", r.ID, r.Name, systemNames(cmd, repos, r.SystemIDs))
		if r.SoftwareTitleID.Valid {
			if t, err := repos.SoftwareTitles().Get(cmd.Context(), r.SoftwareTitleID.Int64); err == nil && t != nil {
				fmt.Printf("Title: %s\n", t.Name)
			}
		}
		sets, err := repos.FileSets().ListForRelease(cmd.Context(), id)
		if err != nil {
			return err
		}
		for _, fs := range sets {
			fmt.Printf("  file set #%d %s (%s)\n", fs.ID, fs.Name, fs.FileType)
		}
		items, err := repos.Releases().Items(cmd.Context(), id)
		if err != nil {
			return err
		}
		for _, it := range items {
			fmt.Printf("  item #%d %s: %v\n", it.ID, it.ItemType, it.FileSetIDs)
		}
		return nil
	})

var releaseLinkCmd = crudCommand("link RELEASE_ID FILE_SET_ID", "Link a file set to a release", "LinkFileSet", 2, true,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return repos.Releases().LinkFileSet(cmd.Context(), ids[0], ids[1])
	})

var releaseItemCmd = crudCommand("item RELEASE_ID TYPE", "Add a release item with file sets", "AddReleaseItem", 2, true,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		it, err := efm.ParseReleaseItemType(args[1])
		if err != nil {
			return err
		}
		values, _ := cmd.Flags().GetStringSlice("file-set")
		sets, err := parseIDs(values)
		if err != nil {
			return err
		}
		item, err := repos.Releases().AddItem(cmd.Context(), id, it, sets)
		if err != nil {
			return err
		}
		fmt.Printf("item #%d\n", item.ID)
		return nil
	})

var releaseDeleteCmd = crudCommand("delete ID", "Delete a release", "DeleteRelease", 1, true,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return repos.Releases().Delete(cmd.Context(), id)
	})

var fileSetCmd = &cobra.Command{Use: "fileset", Short: "Inspect file sets"}

var fileSetListCmd = crudCommand("list", "List file sets", "ListFileSets", 0, false,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		sets, err := repos.FileSets().List(cmd.Context())
		if err != nil {
			return err
		}
		for _, fs := range sets {
			fmt.Printf("#%d %-40s %-14s %s\n", fs.ID, fs.Name, fs.FileType, systemNames(cmd, repos, fs.SystemIDs))
		}
		return nil
	})

var fileSetShowCmd = crudCommand("show ID", "Show the files of a file set", "GetFileSet", 1, false,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		fs, err := repos.FileSets().Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		if fs == nil {
			return efm.NewInvalidInputError(fmt.Sprintf("file set %d not found", id))
		}
		fmt.Printf("#%d %s (%s)\n", fs.ID, fs.Name, fs.FileType)
		if fs.Source != "" {
			fmt.Printf("Source: %s\n", fs.Source)
		}
		files, err := repos.FileSets().Files(cmd.Context(), id)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Printf("  %s  %10d  %-14s  %s\n", f.FileInfo.SHA1, f.FileInfo.FileSize, f.FileInfo.CloudSyncState, f.FileName)
		}
		return nil
	})

var emulatorAddCmd = crudCommand("add NAME EXECUTABLE", "Add an emulator", "AddEmulator", 2, true,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		template, _ := cmd.Flags().GetString("args")
		extract, _ := cmd.Flags().GetBool("extract")
		specs, _ := cmd.Flags().GetStringArray("system")

		em := &efm.Emulator{Name: args[0], Executable: args[1], Arguments: template, ExtractFiles: extract}
		for _, spec := range specs {
			idPart, sysArgs, _ := strings.Cut(spec, "=")
			id, err := parseID(idPart)
			if err != nil {
				return err
			}
			em.Systems = append(em.Systems, efm.EmulatorSystem{SystemID: id, Arguments: sysArgs})
		}
		if len(em.Systems) == 0 {
			return errors.New("an emulator needs at least one --system")
		}
		added, err := repos.Emulators().Add(cmd.Context(), em)
		if err != nil {
			return err
		}
		fmt.Printf("#%d %s\n", added.ID, added.Name)
		return nil
	})

var emulatorListCmd = crudCommand("list", "List emulators", "ListEmulators", 0, false,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		emulators, err := repos.Emulators().List(cmd.Context())
		if err != nil {
			return err
		}
		for _, em := range emulators {
			fmt.Printf("#%d %s: %s %s\n", em.ID, em.Name, em.Executable, em.Arguments)
			for _, s := range em.Systems {
				fmt.Printf("  %s %s\n", systemNames(cmd, repos, []int64{s.SystemID}), s.Arguments)
			}
		}
		return nil
	})

var emulatorDeleteCmd = crudCommand("delete ID", "Delete an emulator", "DeleteEmulator", 1, true,
	func(cmd *cobra.Command, repos efm.Repositories, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return repos.Emulators().Delete(cmd.Context(), id)
	})

func addCatalogCommands(root *cobra.Command) {
	systemCmd.AddCommand(systemAddCmd, systemListCmd, systemRenameCmd, systemDeleteCmd)
	titleCmd.AddCommand(titleAddCmd, titleListCmd, titleDeleteCmd)

	releaseAddCmd.Flags().StringSliceP("system", "s", nil, "System ids")
	releaseAddCmd.Flags().String("title", "", "Software title, created when missing")
	releaseItemCmd.Flags().StringSlice("file-set", nil, "File set ids of the item")
	releaseCmd.AddCommand(releaseAddCmd, releaseListCmd, releaseShowCmd, releaseLinkCmd, releaseItemCmd, releaseDeleteCmd)

	fileSetCmd.AddCommand(fileSetListCmd, fileSetShowCmd)

	root.AddCommand(systemCmd, titleCmd, releaseCmd, fileSetCmd)
}
