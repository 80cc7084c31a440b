package yolomark

// Save and Export of annotations.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// Failure records an image whose files could not be written.
type Failure struct {
	Image string
	Err   error
}

// MarshalJSON encodes the error as its message.
func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Image string `json:"image"`
		Error string `json:"error"`
	}{f.Image, f.Err.Error()})
}

// Report lists what a Save or Export wrote and which images failed. An exported image whose label
// file could not be written is listed in Train or Val and in Failed.
type Report struct {
	Labels []string  `json:"labels"` // Label file names, relative to the sink.
	Train  []string  `json:"train"`  // Exported train images (source paths).
	Val    []string  `json:"val"`    // Exported val images (source paths).
	Failed []Failure `json:"failed"`
}

// OK reports whether no image failed.
func (r *Report) OK() bool {
	return len(r.Failed) == 0
}

func (r *Report) fail(image string, err error) {
	r.Failed = append(r.Failed, Failure{Image: image, Err: err})
}

func (r *Report) sort() {
	sort.Strings(r.Labels)
	sort.Strings(r.Train)
	sort.Strings(r.Val)
	sort.Slice(r.Failed, func(i, j int) bool { return r.Failed[i].Image < r.Failed[j].Image })
}

// SaveOptions controls Save.
type SaveOptions struct {
	LabelOptions
}

// ExportOptions controls Export.
type ExportOptions struct {
	LabelOptions
	SplitOptions

	// Optional resizing of exported images. Zero values keep the images as they are; one of them
	// may be zero to keep the aspect ratio.
	ResizeLonger     int
	ResizeShorter    int
	DownsampleFilter string // nearest, box, linear, gaussian or lanczos. Default box.
	UpsampleFilter   string // Default linear.
	JPEGQuality      int    // [1, 100]. Default 90.

	Workers int // The number of concurrent image copies. Default 2*NumCPU.
}

func (o *ExportOptions) withDefaults() {
	if o.DownsampleFilter == "" {
		o.DownsampleFilter = "box"
	}
	if o.UpsampleFilter == "" {
		o.UpsampleFilter = "linear"
	}
	if o.JPEGQuality < 1 || o.JPEGQuality > 100 {
		o.JPEGQuality = 90
	}
	if o.Workers <= 0 {
		o.Workers = 2 * runtime.NumCPU()
	}
}

// Export directory layout.
var exportDirs = []string{
	path.Join("images", TrainSubset),
	path.Join("images", ValSubset),
	path.Join("labels", TrainSubset),
	path.Join("labels", ValSubset),
}

// labelNames maps each image to its label file name. Images whose label file name was already
// taken by an earlier image map to an error.
func labelNames(images []string) (map[string]string, map[string]error) {
	names := make(map[string]string, len(images))
	owners := make(map[string]string, len(images))
	var collisions map[string]error
	for _, image := range images {
		name := labelFileName(image)
		if owner, taken := owners[name]; taken {
			if collisions == nil {
				collisions = make(map[string]error)
			}
			collisions[image] = fmt.Errorf("label file %q is already used by %q", name, owner)
			continue
		}
		owners[name] = image
		names[image] = name
	}
	return names, collisions
}

// labelNames assigns label file names to the listed and the annotated images of s in path order,
// so that Save, Export and LoadAnnotations agree on the owner of a shared name.
func (s *Session) labelNames() (map[string]string, map[string]error) {
	images := append(s.Images(), s.Store.Images()...)
	sort.Strings(images)
	unique := images[:0]
	for i, image := range images {
		if i == 0 || image != images[i-1] {
			unique = append(unique, image)
		}
	}
	return labelNames(unique)
}

// Save writes one label file per annotated image and the class list to sink.
//
// Errors writing a label file are collected in the report and do not stop the save. An error
// writing the class list, or a cancelled ctx, is returned.
func Save(ctx context.Context, sink Sink, s *Session, opts SaveOptions) (Report, error) {
	var report Report
	images := s.Store.Images()
	names, collisions := s.labelNames()

	for _, image := range images {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err, ok := collisions[image]; ok {
			s.log.Warn("Skipping image", zap.String("image", image), zap.Error(err))
			report.fail(image, err)
			continue
		}

		size, err := s.sizeFor(image, opts.Format)
		if err == nil {
			var data []byte
			if data, err = encodeLabels(s.Store.Boxes(image), size, s.Classes, opts.LabelOptions); err == nil {
				err = sink.WriteFile(ctx, names[image], data)
			}
		}
		if err != nil {
			s.log.Warn("Failed to save labels", zap.String("image", image), zap.Error(err))
			report.fail(image, err)
			continue
		}
		report.Labels = append(report.Labels, names[image])
	}

	if err := sink.WriteFile(ctx, ClassListFile, encodeClassList(s.Classes, opts.IDs)); err != nil {
		return report, err
	}

	report.sort()
	s.log.Info("Annotations saved",
		zap.Int("labelFiles", len(report.Labels)),
		zap.Int("failed", len(report.Failed)),
		zap.Int("classes", s.Classes.Len()))
	return report, nil
}

// exportTask is one image to export.
type exportTask struct {
	image     string
	subset    string
	labelName string
	boxes     []Box
	size      Size // Native size, set when needed to encode labels.
}

// exporter holds the per-Export state shared by the workers.
type exporter struct {
	sink       Sink
	registry   *Registry
	opts       ExportOptions
	resize     bool
	downsample imaging.ResampleFilter
	upsample   imaging.ResampleFilter
	log        *zap.Logger

	mu     sync.Mutex
	report Report
}

// Export partitions all images of the session into train and val and writes them to sink:
// images to images/<subset>/, label files of annotated images to labels/<subset>/ and the class
// list to classes.txt.
//
// Errors for individual images are collected in the report and the export continues with the
// other images. Errors creating the directories or writing the class list, an invalid train
// fraction or a cancelled ctx are returned, along with what was written so far.
func Export(ctx context.Context, sink Sink, s *Session, opts ExportOptions) (Report, error) {
	opts.withDefaults()
	e := &exporter{
		sink:     sink,
		registry: s.Classes,
		opts:     opts,
		resize:   opts.ResizeLonger > 0 || opts.ResizeShorter > 0,
		log:      s.log,
	}

	var err error
	if e.downsample, err = resampleFilter(opts.DownsampleFilter); err != nil {
		return Report{}, err
	}
	if e.upsample, err = resampleFilter(opts.UpsampleFilter); err != nil {
		return Report{}, err
	}

	images := s.Images()
	train, val, err := Partition(images, opts.SplitOptions)
	if err != nil {
		return Report{}, err
	}
	e.log.Info("Exporting dataset",
		zap.Stringer("sink", stringer(sink)),
		zap.Int("images", len(images)),
		zap.Int("train", len(train)),
		zap.Int("val", len(val)))

	for _, dir := range exportDirs {
		if err := sink.MkdirAll(ctx, dir); err != nil {
			return Report{}, err
		}
	}

	// Prepare the tasks on this goroutine; the session is not safe for concurrent use.
	names, collisions := s.labelNames()
	tasks := make([]exportTask, 0, len(images))
	for _, subset := range []struct {
		name   string
		images []string
	}{{TrainSubset, train}, {ValSubset, val}} {
		for _, image := range subset.images {
			t := exportTask{image: image, subset: subset.name, boxes: s.Store.Boxes(image)}
			if len(t.boxes) > 0 {
				if err, ok := collisions[image]; ok {
					// The image is still exported, without its label file.
					e.log.Warn("Skipping label file", zap.String("image", image), zap.Error(err))
					e.report.fail(image, err)
					t.boxes = nil
					tasks = append(tasks, t)
					continue
				}
				t.labelName = names[image]
				if t.size, err = s.sizeFor(image, opts.Format); err != nil {
					e.report.fail(image, err)
					continue
				}
			}
			tasks = append(tasks, t)
		}
	}

	runErr := e.run(ctx, tasks)

	if runErr == nil {
		runErr = sink.WriteFile(ctx, ClassListFile, encodeClassList(s.Classes, opts.IDs))
	}

	e.report.sort()
	e.log.Info("Dataset exported",
		zap.Int("train", len(e.report.Train)),
		zap.Int("val", len(e.report.Val)),
		zap.Int("labelFiles", len(e.report.Labels)),
		zap.Int("failed", len(e.report.Failed)),
		zap.Error(runErr))
	return e.report, runErr
}

// run processes tasks concurrently from a work queue. It returns ctx.Err() if ctx is cancelled
// before all tasks were scheduled.
func (e *exporter) run(ctx context.Context, tasks []exportTask) error {
	// Limit the number of goroutines in flight, as resizing loads potentially large images into
	// memory.
	numWorkers := e.opts.Workers
	if len(tasks) < numWorkers {
		numWorkers = len(tasks)
	}
	workQueue := make(chan *exportTask, 2*numWorkers)

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for t := range workQueue {
				e.process(ctx, t)
			}
		}()
	}

	// Feed the work queue.
	var err error
feed:
	for i := range tasks {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case workQueue <- &tasks[i]:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(workQueue)
	wg.Wait()

	return err
}

// process exports a single image and records the outcome.
func (e *exporter) process(ctx context.Context, t *exportTask) {
	err := e.exportImage(ctx, t)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.log.Warn("Failed to export image", zap.String("image", t.image), zap.Error(err))
		e.report.fail(t.image, err)
		return
	}
	if t.subset == TrainSubset {
		e.report.Train = append(e.report.Train, t.image)
	} else {
		e.report.Val = append(e.report.Val, t.image)
	}
	if t.labelName != "" {
		e.report.Labels = append(e.report.Labels, path.Join("labels", t.subset, t.labelName))
	}
}

// exportImage copies or resizes the image and writes its label file.
func (e *exporter) exportImage(ctx context.Context, t *exportTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	imageName := path.Join("images", t.subset, filepath.Base(t.image))
	boxes, size := t.boxes, t.size

	if e.resize {
		img, err := loadImage(t.image)
		if err != nil {
			return err
		}
		resized, scaleWidth, scaleHeight := resizeImage(img, e.opts.ResizeLonger,
			e.opts.ResizeShorter, e.downsample, e.upsample)

		var buf bytes.Buffer
		if err := encodeImage(&buf, t.image, resized, e.opts.JPEGQuality); err != nil {
			return fmt.Errorf("failed to encode %q: %w", t.image, err)
		}
		if err := e.sink.WriteFile(ctx, imageName, buf.Bytes()); err != nil {
			return err
		}

		// Rescale the coordinates to the resized image.
		for i := range boxes {
			boxes[i] = boxes[i].Scale(scaleWidth, scaleHeight)
		}
		size = Size{Width: resized.Bounds().Dx(), Height: resized.Bounds().Dy()}
	} else if err := e.sink.CopyFile(ctx, imageName, t.image); err != nil {
		return err
	}

	if t.labelName == "" {
		return nil
	}
	data, err := encodeLabels(boxes, size, e.registry, e.opts.LabelOptions)
	if err != nil {
		return err
	}
	return e.sink.WriteFile(ctx, path.Join("labels", t.subset, t.labelName), data)
}

// stringer describes a sink for logging.
func stringer(sink Sink) fmt.Stringer {
	if s, ok := sink.(fmt.Stringer); ok {
		return s
	}
	return sinkName(fmt.Sprintf("%T", sink))
}

type sinkName string

func (n sinkName) String() string { return string(n) }
