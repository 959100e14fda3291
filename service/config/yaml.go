package config

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/khaledhikmat/vs-render/model"
)

var fourccPattern = regexp.MustCompile(`^[A-Za-z0-9 ]{4}$`)

// Descriptor is the dataset/configuration file passed with --cfg.
type Descriptor struct {
	Task     string `yaml:"task"`
	Datasets struct {
		Test DatasetConfig `yaml:"test"`
	} `yaml:"datasets"`
	Video   VideoConfig   `yaml:"video"`
	Overlay OverlayConfig `yaml:"overlay"`
}

type DatasetConfig struct {
	Parameters DatasetParameters `yaml:"parameters"`
}

type DatasetParameters struct {
	ImgSize []int    `yaml:"img_size"` // [h, w]
	Root    string   `yaml:"root"`
	Pattern string   `yaml:"pattern"`
	Frames  int      `yaml:"frames"`
	Labels  []string `yaml:"labels"`
}

type VideoConfig struct {
	Codec string `yaml:"codec"`
}

type OverlayConfig struct {
	Anchor []int `yaml:"anchor"` // [x, y]
}

type yamlService struct {
	hardcodedService
	desc       Descriptor
	kind       model.RecordKind
	resolution image.Point
	anchor     image.Point
	root       string
}

// NewYAML reads and validates the descriptor at path. A relative frames root
// is resolved against the descriptor's directory.
func NewYAML(path string) (IService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var desc Descriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	svc, err := newFromDescriptor(desc)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	if svc.root != "" && !filepath.IsAbs(svc.root) {
		svc.root = filepath.Join(filepath.Dir(path), svc.root)
	}

	return svc, nil
}

func newFromDescriptor(desc Descriptor) (*yamlService, error) {
	if err := Validate(&desc); err != nil {
		return nil, err
	}

	kind, err := model.ParseRecordKind(desc.Task)
	if err != nil {
		return nil, err
	}

	params := desc.Datasets.Test.Parameters
	return &yamlService{
		desc:       desc,
		kind:       kind,
		resolution: image.Pt(params.ImgSize[1], params.ImgSize[0]),
		anchor:     image.Pt(desc.Overlay.Anchor[0], desc.Overlay.Anchor[1]),
		root:       params.Root,
	}, nil
}

// Validate checks the descriptor and fills defaults.
func Validate(desc *Descriptor) error {
	params := &desc.Datasets.Test.Parameters

	if len(params.ImgSize) != 2 {
		return fmt.Errorf("datasets.test.parameters.img_size must be [h, w]")
	}
	if params.ImgSize[0] <= 0 || params.ImgSize[1] <= 0 {
		return fmt.Errorf("datasets.test.parameters.img_size must be positive, got %v", params.ImgSize)
	}
	if params.Frames < 0 {
		return fmt.Errorf("datasets.test.parameters.frames must be >= 0")
	}
	if params.Pattern == "" {
		params.Pattern = DefaultFramesPattern
	}

	if desc.Video.Codec == "" {
		desc.Video.Codec = DefaultCodec
	}
	if !fourccPattern.MatchString(desc.Video.Codec) {
		return fmt.Errorf("video.codec must be a four character code, got %q", desc.Video.Codec)
	}

	if len(desc.Overlay.Anchor) == 0 {
		desc.Overlay.Anchor = []int{10, 30}
	}
	if len(desc.Overlay.Anchor) != 2 {
		return fmt.Errorf("overlay.anchor must be [x, y]")
	}

	return nil
}

// ValidCodec reports whether codec is a four character code.
func ValidCodec(codec string) bool {
	return fourccPattern.MatchString(codec)
}

func (svc *yamlService) GetTask() model.RecordKind {
	return svc.kind
}

func (svc *yamlService) GetResolution() image.Point {
	return svc.resolution
}

func (svc *yamlService) GetCodec() string {
	return svc.desc.Video.Codec
}

func (svc *yamlService) GetFramesFolder() string {
	return svc.root
}

func (svc *yamlService) GetFramesPattern() string {
	return svc.desc.Datasets.Test.Parameters.Pattern
}

func (svc *yamlService) GetFramesCount() int {
	return svc.desc.Datasets.Test.Parameters.Frames
}

func (svc *yamlService) GetLabels() []string {
	return svc.desc.Datasets.Test.Parameters.Labels
}

func (svc *yamlService) GetOverlayAnchor() image.Point {
	return svc.anchor
}
