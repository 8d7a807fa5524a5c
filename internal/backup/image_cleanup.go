package backup

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// Image archive layout inside a store
const (
	ImageDir      = "image"
	ImageListFile = "imagelist.txt"
	ImageSuffix   = ".tar.gz"
)

// ReadImageList returns the image archive names referenced by the image list.
// A missing list is reported as a NOT_FOUND error.
func ReadImageList(ctx context.Context, store ArtifactStore) (map[string]bool, error) {
	rc, err := store.Open(ctx, ImageDir, ImageListFile)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	images := make(map[string]bool)
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			images[line] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, NewStorageError(fmt.Sprintf("failed to read '%s'", storePath(store, ImageDir, ImageListFile)), err)
	}

	return images, nil
}

// CleanupImages deletes every image archive in the image directory of store
// that the image list does not reference. Without a list nothing is removed.
func (rm *RetentionManager) CleanupImages(ctx context.Context, store ArtifactStore, report *RunReport) *ImageCleanupResult {
	result := &ImageCleanupResult{Store: store.Name()}

	listed, err := ReadImageList(ctx, store)
	if err != nil {
		if IsNotFound(err) {
			rm.logger.Debugf("Cleanup: '%s' does not exist", storePath(store, ImageDir, ImageListFile))
		} else {
			msg := fmt.Sprintf("Cleanup: image list unreadable: %v", err)
			report.AddError(msg)
			rm.logger.Error(msg)
		}
		result.Skipped = true
		return result
	}

	infos, err := store.List(ctx, ImageDir)
	if err != nil {
		msg := fmt.Sprintf("Cleanup: failed to list '%s': %v", storePath(store, ImageDir), err)
		report.AddError(msg)
		rm.logger.Error(msg)
		result.Skipped = true
		return result
	}

	for _, info := range infos {
		if !strings.HasSuffix(info.Name, ImageSuffix) {
			continue
		}
		if listed[info.Name] {
			rm.logger.Debugf("Cleanup: image '%s' in %s", info.Name, ImageListFile)
			result.Kept = append(result.Kept, info.Name)
			continue
		}

		rm.logger.Debugf("Cleanup: image '%s' NOT in %s - REMOVE", info.Name, ImageListFile)
		if rm.dryRun {
			rm.audit.LogImageDeletion(store, info.Name, true, nil)
			continue
		}

		name := info.Name
		err := rm.retry.Retry(ctx, func() error {
			return store.Delete(ctx, ImageDir, name)
		})
		rm.audit.LogImageDeletion(store, name, false, err)
		if err != nil {
			result.Failed = append(result.Failed, name)
			report.AddError(fmt.Sprintf("image: '%s' FAILED deletion. Msg=%v", storePath(store, ImageDir, name), err))
			continue
		}
		result.Deleted = append(result.Deleted, name)
	}

	if rm.metrics != nil {
		rm.metrics.RecordImageCleanup(result)
	}

	return result
}
