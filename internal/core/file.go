package core

import (
	"path"
	"strings"
	"time"
)

// FileConvertStep is the persisted conversion progress of a cloud storage file.
type FileConvertStep string

const (
	ConvertStepNone       FileConvertStep = "None"
	ConvertStepConverting FileConvertStep = "Converting"
	ConvertStepDone       FileConvertStep = "Done"
	ConvertStepFailed     FileConvertStep = "Failed"
)

// Region is the whiteboard service region a conversion task runs in.
type Region string

const (
	RegionCNHZ  Region = "cn-hz"
	RegionUSSV  Region = "us-sv"
	RegionSG    Region = "sg"
	RegionINMUM Region = "in-mum"
	RegionGBLON Region = "gb-lon"
	RegionNone  Region = "none"
)

// ValidRegion reports whether r names a region conversions can run in.
func ValidRegion(r Region) bool {
	switch r {
	case RegionCNHZ, RegionUSSV, RegionSG, RegionINMUM, RegionGBLON:
		return true
	}
	return false
}

// ConversionStatus is the status string reported by the conversion service.
type ConversionStatus string

const (
	ConversionWaiting    ConversionStatus = "Waiting"
	ConversionConverting ConversionStatus = "Converting"
	ConversionFinished   ConversionStatus = "Finished"
	ConversionFail       ConversionStatus = "Fail"
)

// ConversionType selects the whiteboard conversion pipeline.
type ConversionType string

const (
	ConversionDynamic ConversionType = "dynamic"
	ConversionStatic  ConversionType = "static"
)

// CloudStorageFile is a row of cloud_storage_files.
type CloudStorageFile struct {
	FileUUID    string
	FileName    string
	FileSize    int64
	FileURL     string
	ConvertStep FileConvertStep
	TaskUUID    string
	TaskToken   string
	Region      Region
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

var coursewareExts = map[string]bool{".ice": true, ".vf": true}

var convertibleExts = map[string]bool{
	".ppt":  true,
	".pptx": true,
	".doc":  true,
	".docx": true,
	".pdf":  true,
}

func resourceExt(resource string) string {
	p := resource
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.ToLower(path.Ext(p))
}

// IsCourseware reports whether resource is a courseware bundle whose
// conversion result is checked in object storage instead of the
// whiteboard API.
func IsCourseware(resource string) bool {
	return coursewareExts[resourceExt(resource)]
}

// IsConvertible reports whether resource can be submitted for conversion.
func IsConvertible(resource string) bool {
	return IsCourseware(resource) || convertibleExts[resourceExt(resource)]
}

// DetermineType picks the conversion pipeline for resource.
func DetermineType(resource string) ConversionType {
	if resourceExt(resource) == ".pptx" {
		return ConversionDynamic
	}
	return ConversionStatic
}

// CoursewareResultURL returns the object that signals a finished
// courseware conversion: "result" next to the uploaded file.
func CoursewareResultURL(resource string) string {
	fileName := path.Base(resource)
	dir := resource[:len(resource)-len(fileName)]
	return dir + "result"
}

func IsConvertDone(step FileConvertStep) bool { return step == ConvertStepDone }

func IsConvertFailed(step FileConvertStep) bool { return step == ConvertStepFailed }

// ConversionOutcome maps an external status to the step to persist (if
// any) and the error to return (nil on success).
func ConversionOutcome(status ConversionStatus) (FileConvertStep, *AppError) {
	switch status {
	case ConversionFinished:
		return ConvertStepDone, nil
	case ConversionFail:
		return ConvertStepFailed, NewFailed(ErrCodeFileConvertFailed)
	case ConversionWaiting:
		return "", NewFailed(ErrCodeFileIsConvertWaiting)
	default:
		return "", NewFailed(ErrCodeFileIsConverting)
	}
}
