package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"efm-go/internal/app"
	"efm-go/internal/cloudsync"
	"efm-go/internal/config"
	"efm-go/internal/credentials"
	"efm-go/internal/download"
	"efm-go/internal/efm"
	"efm-go/internal/emulator"
	"efm-go/internal/fileimport"
	"efm-go/internal/massimport"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, err
	}

	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	app.ApplyEnv(cfg)
	return cfg, nil
}

// newApp reads the config and creates an EFMApp. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "AddFileSet", "SyncToCloud").
func newApp(cmd *cobra.Command, operation string, args []string) (*app.EFMApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")

	a, err := app.NewEFMApp(cfg, app.Options{
		Operation:  operation,
		Parameters: strings.Join(args, " "),
		Passphrase: promptPassphrase,
		Verbose:    verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// mutating opens the app and records the operation in the history.
func mutating(cmd *cobra.Command, operation string, args []string) (*app.EFMApp, error) {
	a, err := newApp(cmd, operation, args)
	if err != nil {
		return nil, err
	}
	if err := a.Mutating(cmd.Context()); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func promptPassphrase() (string, error) {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pass), nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseIDs(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := parseID(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func fileTypeFlag(cmd *cobra.Command) (efm.FileType, error) {
	slug, _ := cmd.Flags().GetString("type")
	return efm.ParseFileType(slug)
}

func systemsFlag(cmd *cobra.Command) ([]int64, error) {
	values, _ := cmd.Flags().GetStringSlice("system")
	return parseIDs(values)
}

var rootCmd = &cobra.Command{
	Use:          "efm",
	Short:        "Emulator file manager",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return err
		}

		cfg := config.NewConfig(paths.BaseDir)
		if err := config.Init(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("Base Dir: %s\n", paths.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Database:    %s %s\n", cfg.Database.Type, cfg.Database.Path)
		fmt.Printf("Credentials: %s\n", cfg.Cloud.CredentialsPath)
		fmt.Printf("Ignore:      %s\n", strings.Join(cfg.Import.Ignore, ", "))
		return nil
	},
}

// settings command
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage collection settings",
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "View collection settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "GetSettings", args)
		if err != nil {
			return err
		}
		defer a.Close()

		settings, err := a.Service().Repos().Settings().Get(cmd.Context())
		if err != nil {
			return err
		}
		for _, key := range efm.KnownSettings() {
			fmt.Printf("%-20s %s\n", key, settings.Get(key))
		}
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Change a collection setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := mutating(cmd, "SetSetting", args)
		if err != nil {
			return err
		}
		defer a.Close()
		defer func() { a.Fail(err) }()

		return a.Service().Repos().Settings().Set(cmd.Context(), args[0], args[1])
	},
}

// credentials command
var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage cloud credentials",
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store S3 access keys encrypted with a passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "SetCredentials", nil)
		if err != nil {
			return err
		}
		defer a.Close()

		accessKey, _ := cmd.Flags().GetString("access-key-id")
		if accessKey == "" {
			return errors.New("--access-key-id is required")
		}
		fmt.Fprint(os.Stderr, "Secret access key: ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading secret: %w", err)
		}
		pass, err := promptPassphrase()
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}

		creds := credentials.Credentials{AccessKeyID: accessKey, SecretAccessKey: string(secret)}
		if err := a.SaveCredentials(creds, pass); err != nil {
			return err
		}
		fmt.Println("Credentials saved.")
		return nil
	},
}

// import commands
var prepareCmd = &cobra.Command{
	Use:   "prepare PATH",
	Short: "Inspect a file or archive before importing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ft, err := fileTypeFlag(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "PrepareImport", args)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Service().PrepareImport(cmd.Context(), args[0], ft)
		if err != nil {
			return err
		}

		fmt.Printf("Name:     %s\n", res.SuggestedName)
		fmt.Printf("Archive:  %t\n", res.IsArchive)
		fmt.Printf("Files:    %d new, %d already stored\n", res.NewFiles, res.ExistingFiles)
		for _, f := range res.Files {
			fmt.Printf("  %s\n", f.FileName)
		}
		for _, fs := range res.MatchingFileSets {
			fmt.Printf("Identical file set: #%d %s\n", fs.ID, fs.Name)
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import PATH",
	Short: "Import a file or archive as a new file set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ft, err := fileTypeFlag(cmd)
		if err != nil {
			return err
		}
		systems, err := systemsFlag(cmd)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		source, _ := cmd.Flags().GetString("source")
		selected, _ := cmd.Flags().GetStringSlice("file")
		release, _ := cmd.Flags().GetString("release")

		a, err := mutating(cmd, "AddFileSet", args)
		if err != nil {
			return err
		}
		defer a.Close()
		defer func() { a.Fail(err) }()

		in := fileimport.AddFileSetInput{
			Path:      args[0],
			FileType:  ft,
			Name:      name,
			Source:    source,
			SystemIDs: systems,
			Selected:  selected,
		}
		if release != "" {
			title, _ := cmd.Flags().GetString("title")
			in.NewRelease = &efm.NewRelease{Name: release, SoftwareTitleName: title, SystemIDs: systems}
		}

		progress, wait := printProgress()
		res, err := a.Service().AddFileSet(cmd.Context(), in, progress)
		wait()
		if err != nil {
			return err
		}
		printImportResult(res)
		return nil
	},
}

var addFilesCmd = &cobra.Command{
	Use:   "add-files FILE_SET_ID PATH",
	Short: "Add the files of a source to an existing file set",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		selected, _ := cmd.Flags().GetStringSlice("file")

		a, err := mutating(cmd, "AddFilesToFileSet", args)
		if err != nil {
			return err
		}
		defer a.Close()
		defer func() { a.Fail(err) }()

		progress, wait := printProgress()
		res, err := a.Service().AddFilesToFileSet(cmd.Context(), fileimport.AddFilesInput{
			FileSetID: id,
			Path:      args[1],
			Selected:  selected,
		}, progress)
		wait()
		if err != nil {
			return err
		}
		printImportResult(res)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update FILE_SET_ID PATH",
	Short: "Replace the files and attributes of a file set",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		systems, err := systemsFlag(cmd)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		source, _ := cmd.Flags().GetString("source")
		selected, _ := cmd.Flags().GetStringSlice("file")

		a, err := mutating(cmd, "UpdateFileSet", args)
		if err != nil {
			return err
		}
		defer a.Close()
		defer func() { a.Fail(err) }()

		progress, wait := printProgress()
		res, err := a.Service().UpdateFileSet(cmd.Context(), fileimport.UpdateFileSetInput{
			FileSetID: id,
			Path:      args[1],
			Selected:  selected,
			Name:      name,
			Source:    source,
			SystemIDs: systems,
		}, progress)
		wait()
		if err != nil {
			return err
		}
		printImportResult(res)
		return nil
	},
}

var massImportCmd = &cobra.Command{
	Use:   "mass-import DIR",
	Short: "Import every file of a directory, optionally matched against a DAT file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ft, err := fileTypeFlag(cmd)
		if err != nil {
			return err
		}
		datPath, _ := cmd.Flags().GetString("dat")
		recursive, _ := cmd.Flags().GetBool("recursive")
		systemID, _ := cmd.Flags().GetInt64("system")
		in := massimport.Input{
			Dir:       args[0],
			DatPath:   datPath,
			FileType:  ft,
			SystemID:  systemID,
			Recursive: recursive,
		}
		if s, _ := cmd.Flags().GetString("item-type"); s != "" {
			it, err := efm.ParseReleaseItemType(s)
			if err != nil {
				return err
			}
			in.ItemType = &it
		}

		a, err := mutating(cmd, "MassImport", args)
		if err != nil {
			return err
		}
		defer a.Close()
		defer func() { a.Fail(err) }()

		progress, wait := printProgress()
		res, err := a.Service().MassImport(cmd.Context(), in, progress)
		wait()
		if err != nil {
			return err
		}

		if res.DatFile != nil {
			state := "already known"
			if res.DatFileStored {
				state = "stored"
			}
			fmt.Printf("DAT %s (%s): %s\n", res.DatFile.Name, res.DatFile.Version, state)
		}
		fmt.Printf("Imported %d file set(s)\n", len(res.Items))
		for _, path := range res.Unmatched {
			fmt.Printf("Unmatched: %s\n", path)
		}
		paths := make([]string, 0, len(res.ReadErrors))
		for path := range res.ReadErrors {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			fmt.Printf("Unreadable: %s: %s\n", path, res.ReadErrors[path])
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete FILE_SET_ID",
	Short: "Delete a file set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := mutating(cmd, "DeleteFileSet", args)
		if err != nil {
			return err
		}
		defer a.Close()
		defer func() { a.Fail(err) }()

		res, err := a.Service().DeleteFileSet(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted file set #%d %s\n", res.FileSet.ID, res.FileSet.Name)
		fmt.Printf("Removed %d local file(s), %d waiting for the next sync\n", len(res.DeletedFiles), len(res.Tombstoned))
		for name, msg := range res.FailedDeletions {
			fmt.Printf("Could not remove %s: %s\n", name, msg)
		}
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload pending files and delete removed ones in the cloud",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		uploadDB, _ := cmd.Flags().GetBool("upload-db")

		a, err := mutating(cmd, "SyncToCloud", args)
		if err != nil {
			return err
		}
		defer a.Close()
		defer func() { a.Fail(err) }()

		progress, wait := printProgress()
		res, err := a.Service().SyncToCloud(cmd.Context(), cloudsync.Options{UploadDatabase: uploadDB}, progress)
		wait()
		if err != nil {
			return err
		}

		fmt.Printf("Uploaded %d, failed %d; deleted %d, failed %d\n",
			res.SuccessfulUploads, res.FailedUploads, res.SuccessfulDeletions, res.FailedDeletions)
		if res.DatabaseUploaded {
			fmt.Println("Database snapshot uploaded.")
		}
		if res.FailedUploads+res.FailedDeletions > 0 {
			return errors.New("some files did not sync; run sync again to retry")
		}
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download FILE_SET_ID",
	Short: "Fetch a file set from the cloud and export it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		extract, _ := cmd.Flags().GetBool("extract")
		out, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd, "DownloadFileSet", args)
		if err != nil {
			return err
		}
		defer a.Close()

		progress, wait := printProgress()
		res, err := a.Service().DownloadFileSet(cmd.Context(), download.Input{
			FileSetID:    id,
			ExtractFiles: extract,
			OutputDir:    out,
		}, progress)
		wait()
		if err != nil {
			return err
		}
		for _, path := range res.ExportedFiles {
			fmt.Println(path)
		}
		for _, path := range res.Thumbnails {
			fmt.Printf("thumbnail: %s\n", path)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move files of legacy file types to their current type",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := mutating(cmd, "MigrateFileTypes", args)
		if err != nil {
			return err
		}
		defer a.Close()
		defer func() { a.Fail(err) }()

		res, err := a.Service().MigrateFileTypes(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Moved %d file(s) and %d cloud object(s); retyped %d file set(s)\n",
			res.MovedFiles, res.MovedObjects, res.RetypedFileSets)
		if res.Requeued > 0 {
			fmt.Printf("%d file(s) missing in the cloud will be uploaded on the next sync\n", res.Requeued)
		}
		return nil
	},
}

var restoreDBCmd = &cobra.Command{
	Use:   "restore-db",
	Short: "Download the database snapshot from the cloud",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		settings := map[string]string{}
		for flag, key := range map[string]string{
			"provider": efm.SettingCloudProvider,
			"bucket":   efm.SettingS3Bucket,
			"endpoint": efm.SettingS3Endpoint,
			"region":   efm.SettingS3Region,
			"prefix":   efm.SettingS3Prefix,
			"fs-root":  efm.SettingCloudFSRoot,
		} {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				settings[key] = v
			}
		}
		if err := app.RestoreDatabase(cmd.Context(), cfg, settings, promptPassphrase); err != nil {
			return err
		}
		fmt.Printf("Database restored to %s\n", cfg.Database.Path)
		return nil
	},
}

// emulator command
var emulatorCmd = &cobra.Command{
	Use:   "emulator",
	Short: "Manage and run emulators",
}

var emulatorRunCmd = &cobra.Command{
	Use:   "run EMULATOR_ID FILE_SET_ID",
	Short: "Download a file set and start an emulator on it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		systemID, _ := cmd.Flags().GetInt64("system")
		file, _ := cmd.Flags().GetString("file")

		a, err := newApp(cmd, "LaunchEmulator", args)
		if err != nil {
			return err
		}
		defer a.Close()

		progress, wait := printProgress()
		res, err := a.Service().LaunchEmulator(cmd.Context(), emulator.LaunchInput{
			EmulatorID: ids[0],
			FileSetID:  ids[1],
			SystemID:   systemID,
			FileName:   file,
		}, progress)
		wait()
		if err != nil {
			return err
		}
		if res.Run.ExitCode != 0 {
			return fmt.Errorf("%s exited with code %d", res.Command.Executable, res.Run.ExitCode)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "GetHistory", args)
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-18s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func printImportResult(res *fileimport.Result) {
	if res.Skipped {
		fmt.Printf("File set #%d %s already exists\n", res.FileSet.ID, res.FileSet.Name)
		return
	}
	fmt.Printf("File set #%d %s: stored %d new file(s)\n", res.FileSet.ID, res.FileSet.Name, len(res.Stored))
	for _, path := range res.RemovedBlobs {
		fmt.Printf("Removed unused %s\n", filepath.Base(path))
	}
	for path, msg := range res.FailedRemovals {
		fmt.Printf("Could not remove %s: %s\n", path, msg)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	settingsCmd.AddCommand(settingsListCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsSetCmd.Flags().String("access-key-id", "", "S3 access key id")

	for _, c := range []*cobra.Command{prepareCmd, importCmd, massImportCmd} {
		c.Flags().StringP("type", "t", efm.FileTypeRom.Slug(), "File type")
	}
	for _, c := range []*cobra.Command{importCmd, addFilesCmd, updateCmd} {
		c.Flags().StringSliceP("file", "f", nil, "Only import these files of an archive")
	}
	for _, c := range []*cobra.Command{importCmd, updateCmd} {
		c.Flags().StringSliceP("system", "s", nil, "System ids")
		c.Flags().StringP("name", "n", "", "File set name")
		c.Flags().String("source", "", "Where the files came from")
	}
	importCmd.Flags().String("release", "", "Create a release with this name for the file set")
	importCmd.Flags().String("title", "", "Software title of the new release")

	massImportCmd.Flags().String("dat", "", "DAT file to match the files against")
	massImportCmd.Flags().Int64("system", 0, "System id linked to imported sets")
	massImportCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	massImportCmd.Flags().String("item-type", "", "Release item type for matched sets (box, manual, inlay_card, media, other)")

	syncCmd.Flags().Bool("upload-db", false, "Upload a database snapshot after syncing")

	downloadCmd.Flags().BoolP("extract", "x", false, "Export the original files instead of a zip archive")
	downloadCmd.Flags().StringP("output", "o", "", "Output directory")

	restoreDBCmd.Flags().String("provider", "s3", "Cloud provider (s3 or filesystem)")
	restoreDBCmd.Flags().String("bucket", "", "S3 bucket")
	restoreDBCmd.Flags().String("endpoint", "", "S3 endpoint")
	restoreDBCmd.Flags().String("region", "", "S3 region")
	restoreDBCmd.Flags().String("prefix", "", "S3 key prefix")
	restoreDBCmd.Flags().String("fs-root", "", "Root directory of the filesystem provider")

	emulatorCmd.AddCommand(emulatorAddCmd)
	emulatorCmd.AddCommand(emulatorListCmd)
	emulatorCmd.AddCommand(emulatorDeleteCmd)
	emulatorCmd.AddCommand(emulatorRunCmd)
	emulatorAddCmd.Flags().String("args", "%f", "Argument template; %f is the file, %s the system arguments")
	emulatorAddCmd.Flags().Bool("extract", false, "Pass extracted files instead of the zip archive")
	emulatorAddCmd.Flags().StringArray("system", nil, "SYSTEM_ID or SYSTEM_ID=ARGS")
	emulatorRunCmd.Flags().Int64("system", 0, "System whose arguments are used")
	emulatorRunCmd.Flags().StringP("file", "f", "", "File of the set to start")

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(prepareCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(addFilesCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(massImportCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(restoreDBCmd)
	rootCmd.AddCommand(emulatorCmd)
	rootCmd.AddCommand(historyCmd)
	addCatalogCommands(rootCmd)
}
