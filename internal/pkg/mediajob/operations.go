package mediajob

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/MediaDash/app/models"
)

var (
	timestampPattern = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\.\d{1,3}$`)
	bitratePattern   = regexp.MustCompile(`^\d{2,4}k$`)
)

// Segment is a [start, end) range of a source video.
type Segment struct {
	Start string `json:"start" validate:"required,timestamp"`
	End   string `json:"end" validate:"required,timestamp"`
}

// EncodingOptions are the ffmpeg settings shared by cut and split.
type EncodingOptions struct {
	VideoCodec   string `json:"video_codec,omitempty" validate:"omitempty,oneof=libx264 libx265 libvpx-vp9 copy"`
	VideoPreset  string `json:"video_preset,omitempty" validate:"omitempty,oneof=ultrafast superfast veryfast faster fast medium slow slower veryslow"`
	VideoCRF     *int   `json:"video_crf,omitempty" validate:"omitempty,min=0,max=51"`
	AudioCodec   string `json:"audio_codec,omitempty" validate:"omitempty,oneof=aac libopus libmp3lame copy"`
	AudioBitrate string `json:"audio_bitrate,omitempty" validate:"omitempty,bitrate"`
}

type VideoCutRequest struct {
	VideoURL string    `json:"video_url" validate:"required,http_url"`
	Cuts     []Segment `json:"cuts" validate:"required,min=1,max=50,dive"`
	EncodingOptions
	ID string `json:"id,omitempty" validate:"omitempty,max=128"`
}

type VideoSplitRequest struct {
	VideoURL string    `json:"video_url" validate:"required,http_url"`
	Splits   []Segment `json:"splits" validate:"required,min=1,max=50,dive"`
	EncodingOptions
	ID string `json:"id,omitempty" validate:"omitempty,max=128"`
}

type VideoSource struct {
	VideoURL string `json:"video_url" validate:"required,http_url"`
}

type VideoConcatenateRequest struct {
	VideoURLs []VideoSource `json:"video_urls" validate:"required,min=2,max=50,dive"`
	ID        string        `json:"id,omitempty" validate:"omitempty,max=128"`
}

type AudioSource struct {
	AudioURL string `json:"audio_url" validate:"required,http_url"`
}

type AudioConcatenateRequest struct {
	AudioURLs []AudioSource `json:"audio_urls" validate:"required,min=2,max=50,dive"`
	ID        string        `json:"id,omitempty" validate:"omitempty,max=128"`
}

type ImageToVideoRequest struct {
	ImageURL  string   `json:"image_url" validate:"required,http_url"`
	Length    *float64 `json:"length,omitempty" validate:"omitempty,min=1,max=60"`
	FrameRate *int     `json:"frame_rate,omitempty" validate:"omitempty,min=15,max=60"`
	ZoomSpeed *float64 `json:"zoom_speed,omitempty" validate:"omitempty,min=0,max=100"`
	ID        string   `json:"id,omitempty" validate:"omitempty,max=128"`
}

// CaptionSettings controls the subtitle style burned into the video.
type CaptionSettings struct {
	LineColor       string `json:"line_color,omitempty" validate:"omitempty,hexcolor"`
	WordColor       string `json:"word_color,omitempty" validate:"omitempty,hexcolor"`
	OutlineColor    string `json:"outline_color,omitempty" validate:"omitempty,hexcolor"`
	AllCaps         bool   `json:"all_caps,omitempty"`
	MaxWordsPerLine *int   `json:"max_words_per_line,omitempty" validate:"omitempty,min=1,max=20"`
	Position        string `json:"position,omitempty" validate:"omitempty,oneof=bottom_left bottom_center bottom_right middle_left middle_center middle_right top_left top_center top_right"`
	Alignment       string `json:"alignment,omitempty" validate:"omitempty,oneof=left center right"`
	FontFamily      string `json:"font_family,omitempty" validate:"omitempty,max=100"`
	FontSize        *int   `json:"font_size,omitempty" validate:"omitempty,min=8,max=72"`
	Bold            bool   `json:"bold,omitempty"`
	Italic          bool   `json:"italic,omitempty"`
	Underline       bool   `json:"underline,omitempty"`
	Strikeout       bool   `json:"strikeout,omitempty"`
	Style           string `json:"style,omitempty" validate:"omitempty,oneof=classic karaoke highlight underline word_by_word"`
	OutlineWidth    *int   `json:"outline_width,omitempty" validate:"omitempty,min=0,max=20"`
	Spacing         *int   `json:"spacing,omitempty" validate:"omitempty,min=-10,max=50"`
	Angle           *int   `json:"angle,omitempty" validate:"omitempty,min=-360,max=360"`
	ShadowOffset    *int   `json:"shadow_offset,omitempty" validate:"omitempty,min=0,max=20"`
}

type CaptionReplacement struct {
	Find    string `json:"find" validate:"required,max=200"`
	Replace string `json:"replace" validate:"max=200"`
}

type VideoCaptionRequest struct {
	VideoURL string               `json:"video_url" validate:"required,http_url"`
	Captions string               `json:"captions,omitempty" validate:"omitempty,max=100000"`
	Settings *CaptionSettings     `json:"settings,omitempty"`
	Replace  []CaptionReplacement `json:"replace,omitempty" validate:"omitempty,max=100,dive"`
	Language string               `json:"language,omitempty" validate:"omitempty,max=10"`
	ID       string               `json:"id,omitempty" validate:"omitempty,max=128"`
}

// Request is implemented by every operation payload.
type Request interface {
	ClientID() string
}

func (r *VideoCutRequest) ClientID() string         { return r.ID }
func (r *VideoSplitRequest) ClientID() string       { return r.ID }
func (r *VideoConcatenateRequest) ClientID() string { return r.ID }
func (r *AudioConcatenateRequest) ClientID() string { return r.ID }
func (r *ImageToVideoRequest) ClientID() string     { return r.ID }
func (r *VideoCaptionRequest) ClientID() string     { return r.ID }

// Operation describes one media endpoint: the local route suffix, the
// toolkit path and the payload type with its validation rules.
type Operation struct {
	Name         string
	Route        string
	UpstreamPath string
	NewRequest   func() Request
}

// Operations lists every supported media operation.
var Operations = []Operation{
	{
		Name:         models.OperationVideoCut,
		Route:        "/video/cut",
		UpstreamPath: "/v1/video/cut",
		NewRequest:   func() Request { return &VideoCutRequest{} },
	},
	{
		Name:         models.OperationVideoSplit,
		Route:        "/video/split",
		UpstreamPath: "/v1/video/split",
		NewRequest:   func() Request { return &VideoSplitRequest{} },
	},
	{
		Name:         models.OperationVideoConcatenate,
		Route:        "/video/concatenate",
		UpstreamPath: "/v1/video/concatenate",
		NewRequest:   func() Request { return &VideoConcatenateRequest{} },
	},
	{
		Name:         models.OperationAudioConcatenate,
		Route:        "/audio/concatenate",
		UpstreamPath: "/v1/audio/concatenate",
		NewRequest:   func() Request { return &AudioConcatenateRequest{} },
	},
	{
		Name:         models.OperationImageToVideo,
		Route:        "/image/video",
		UpstreamPath: "/v1/image/convert/video",
		NewRequest:   func() Request { return &ImageToVideoRequest{} },
	},
	{
		Name:         models.OperationVideoCaption,
		Route:        "/video/caption",
		UpstreamPath: "/v1/video/caption",
		NewRequest:   func() Request { return &VideoCaptionRequest{} },
	},
}

// LookupOperation returns the operation registered under name.
func LookupOperation(name string) (Operation, bool) {
	for _, op := range Operations {
		if op.Name == name {
			return op, true
		}
	}
	return Operation{}, false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("timestamp", func(fl validator.FieldLevel) bool {
		return timestampPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("bitrate", func(fl validator.FieldLevel) bool {
		return bitratePattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(validateSegment, Segment{})
	return v
}

func validateSegment(sl validator.StructLevel) {
	seg := sl.Current().Interface().(Segment)
	start, okStart := parseTimestamp(seg.Start)
	end, okEnd := parseTimestamp(seg.End)
	// out of range minutes or seconds pass the pattern but not the parser
	if !okStart && timestampPattern.MatchString(seg.Start) {
		sl.ReportError(seg.Start, "start", "Start", "timestamp", "")
	}
	if !okEnd && timestampPattern.MatchString(seg.End) {
		sl.ReportError(seg.End, "end", "End", "timestamp", "")
	}
	if okStart && okEnd && end <= start {
		sl.ReportError(seg.End, "end", "End", "after_start", "")
	}
}

// parseTimestamp converts hh:mm:ss.ms to a duration.
func parseTimestamp(s string) (time.Duration, bool) {
	if !timestampPattern.MatchString(s) {
		return 0, false
	}
	var h, m, sec int
	var frac string
	for i, part := range []*int{&h, &m, &sec} {
		*part = int(s[i*3]-'0')*10 + int(s[i*3+1]-'0')
	}
	frac = s[9:]
	if m > 59 || sec > 59 {
		return 0, false
	}
	ms := 0
	for i := 0; i < 3; i++ {
		ms *= 10
		if i < len(frac) {
			ms += int(frac[i] - '0')
		}
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second + time.Duration(ms)*time.Millisecond
	return d, true
}
