// Package burn stamps signature images onto PDF documents at placeholder
// coordinates, producing a fresh byte buffer. One bad entry never aborts the
// batch: each entry resolves to a burned or skipped outcome and the engine
// returns the aggregate report alongside the new document.
package burn

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/georgepadayatti/gopdf/pdf/generic"
	"github.com/georgepadayatti/gopdf/pdf/images"
	"github.com/georgepadayatti/gopdf/pdf/reader"
	"github.com/georgepadayatti/gopdf/pdf/writer"
	"go.uber.org/zap"
)

// Entry is one signature to burn: where it goes and what it looks like.
type Entry struct {
	PlaceholderID string
	// PageNumber is 1-indexed, matching placeholder records.
	PageNumber  int
	Geometry    Geometry
	ImageBase64 string
}

// Outcome is the tagged result for a single entry.
type Outcome struct {
	PlaceholderID string `json:"placeholder_id"`
	Burned        bool   `json:"burned"`
	Reason        string `json:"reason,omitempty"`
}

// Report aggregates per-entry outcomes for one burn.
type Report struct {
	Outcomes []Outcome `json:"outcomes"`
}

func (r Report) BurnedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Burned {
			n++
		}
	}
	return n
}

func (r Report) SkippedCount() int { return len(r.Outcomes) - r.BurnedCount() }

type Engine struct {
	log *zap.Logger
}

func NewEngine(log *zap.Logger) *Engine {
	return &Engine{log: log.With(zap.String("component", "burn"))}
}

// pageEdit collects everything destined for one page so the page object is
// rewritten exactly once.
type pageEdit struct {
	paints   []generic.Reference
	xobjects *generic.DictionaryObject
}

// Burn draws every entry's image onto its target page and serializes a new
// document. The input buffer is never mutated; the loaded document model is
// private to this call and a fresh buffer is written at the end. Entries
// with out-of-range pages or undecodable images are skipped with a warning.
func (e *Engine) Burn(pdf []byte, entries []Entry) ([]byte, Report, error) {
	r, err := reader.NewPdfFileReaderFromBytes(pdf)
	if err != nil {
		return nil, Report{}, fmt.Errorf("parse pdf: %w", err)
	}
	w := writer.NewIncrementalPdfFileWriter(r)
	pageCount := r.GetPageCount()

	var report Report
	edits := make(map[int]*pageEdit)

	for _, entry := range entries {
		pageIdx := entry.PageNumber - 1
		if pageIdx < 0 || pageIdx >= pageCount {
			e.log.Warn("skipping signature: page out of range",
				zap.String("placeholder_id", entry.PlaceholderID),
				zap.Int("page_number", entry.PageNumber),
				zap.Int("page_count", pageCount))
			report.Outcomes = append(report.Outcomes, Outcome{
				PlaceholderID: entry.PlaceholderID,
				Reason:        fmt.Sprintf("page %d out of range (document has %d)", entry.PageNumber, pageCount),
			})
			continue
		}

		img, err := DecodeSignatureImage(entry.ImageBase64)
		if err != nil {
			e.log.Warn("skipping signature: undecodable image",
				zap.String("placeholder_id", entry.PlaceholderID),
				zap.Error(err))
			report.Outcomes = append(report.Outcomes, Outcome{
				PlaceholderID: entry.PlaceholderID,
				Reason:        "undecodable image",
			})
			continue
		}

		pageW, pageH, err := pageDimensions(r, pageIdx)
		if err != nil {
			return nil, Report{}, fmt.Errorf("page %d dimensions: %w", entry.PageNumber, err)
		}
		rect := entry.Geometry.MapToPage(pageW, pageH)
		name := resourceName(entry.PlaceholderID)

		imgRef := addImageObject(w, img)
		// The unit image square is scaled by the cm matrix, so W/H land in
		// the scale slots and X/Y anchor the lower-left corner.
		paint := fmt.Sprintf("q %f 0 0 %f %f %f cm /%s Do Q", rect.W, rect.H, rect.X, rect.Y, name)
		paintRef := w.AddObject(generic.NewStream(nil, []byte(paint)))

		ed := edits[pageIdx]
		if ed == nil {
			ed = &pageEdit{xobjects: generic.NewDictionary()}
			edits[pageIdx] = ed
		}
		ed.paints = append(ed.paints, paintRef)
		ed.xobjects.Set(name, imgRef)

		report.Outcomes = append(report.Outcomes, Outcome{PlaceholderID: entry.PlaceholderID, Burned: true})
	}

	pages := make([]int, 0, len(edits))
	for p := range edits {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	for _, p := range pages {
		if err := applyPageEdit(w, r, p, edits[p]); err != nil {
			return nil, Report{}, fmt.Errorf("update page %d: %w", p+1, err)
		}
	}

	var buf bytes.Buffer
	if err := w.Write(&buf); err != nil {
		return nil, Report{}, fmt.Errorf("serialize pdf: %w", err)
	}
	return buf.Bytes(), report, nil
}

// addImageObject embeds img as an image XObject, with an SMask stream when
// the image carries an alpha channel.
func addImageObject(w *writer.IncrementalPdfFileWriter, img *images.PDFImage) generic.Reference {
	imgDict := generic.NewDictionary()
	imgDict.Set("Type", generic.NameObject("XObject"))
	imgDict.Set("Subtype", generic.NameObject("Image"))
	imgDict.Set("Width", generic.IntegerObject(img.Width))
	imgDict.Set("Height", generic.IntegerObject(img.Height))
	imgDict.Set("ColorSpace", generic.NameObject(string(img.ColorSpace)))
	imgDict.Set("BitsPerComponent", generic.IntegerObject(img.BitsPerComponent))
	if img.Filter != "" {
		imgDict.Set("Filter", generic.NameObject(img.Filter))
	}

	if img.HasAlpha() {
		if alpha := img.GetAlphaMask(); alpha != nil {
			alphaDict := generic.NewDictionary()
			alphaDict.Set("Type", generic.NameObject("XObject"))
			alphaDict.Set("Subtype", generic.NameObject("Image"))
			alphaDict.Set("Width", generic.IntegerObject(alpha.Width))
			alphaDict.Set("Height", generic.IntegerObject(alpha.Height))
			alphaDict.Set("ColorSpace", generic.NameObject("DeviceGray"))
			alphaDict.Set("BitsPerComponent", generic.IntegerObject(8))
			if alpha.Filter != "" {
				alphaDict.Set("Filter", generic.NameObject(alpha.Filter))
			}
			alphaRef := w.AddObject(generic.NewStream(alphaDict, alpha.Data))
			imgDict.Set("SMask", alphaRef)
		}
	}

	return w.AddObject(generic.NewStream(imgDict, img.Data))
}

// applyPageEdit rewrites one page object: the original content streams are
// wrapped in q/Q so an unbalanced graphics state cannot displace the stamps,
// the paint streams are appended after, and the image XObjects are merged
// into the page resources. One object update per page: the incremental
// writer resolves pages from the parsed file, so stacking per-stream updates
// would each start over from the original dictionary.
func applyPageEdit(w *writer.IncrementalPdfFileWriter, r *reader.PdfFileReader, pageIdx int, ed *pageEdit) error {
	page, err := r.GetPage(pageIdx)
	if err != nil {
		return err
	}
	pageCopy := page.Clone().(*generic.DictionaryObject)

	var existing generic.ArrayObject
	switch c := pageCopy.Get("Contents").(type) {
	case *generic.ArrayObject:
		existing = *c
	case generic.ArrayObject:
		existing = c
	case nil:
	default:
		existing = generic.ArrayObject{c}
	}

	contents := generic.ArrayObject{w.AddObject(generic.NewStream(nil, []byte("q")))}
	contents = append(contents, existing...)
	contents = append(contents, w.AddObject(generic.NewStream(nil, []byte("Q"))))
	for _, paint := range ed.paints {
		contents = append(contents, paint)
	}
	pageCopy.Set("Contents", contents)

	resources := pageCopy.GetDict("Resources")
	if resources == nil {
		resources = generic.NewDictionary()
	} else {
		resources = resources.Clone().(*generic.DictionaryObject)
	}
	xobjects := resources.GetDict("XObject")
	if xobjects == nil {
		xobjects = generic.NewDictionary()
	} else {
		xobjects = xobjects.Clone().(*generic.DictionaryObject)
	}
	for _, name := range ed.xobjects.Keys() {
		xobjects.Set(name, ed.xobjects.Get(name))
	}
	resources.Set("XObject", xobjects)
	pageCopy.Set("Resources", resources)

	objNum := pageObjectNumber(r, page)
	if objNum <= 0 {
		return fmt.Errorf("no object number for page %d", pageIdx+1)
	}
	w.UpdateObject(objNum, pageCopy)
	return nil
}

// pageObjectNumber resolves the indirect object number backing a parsed
// page dictionary.
func pageObjectNumber(r *reader.PdfFileReader, page *generic.DictionaryObject) int {
	nums := make([]int, 0, len(r.XRef))
	for n, entry := range r.XRef {
		if entry.InUse {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	for _, n := range nums {
		obj, err := r.GetObject(n)
		if err != nil {
			continue
		}
		if dict, ok := obj.(*generic.DictionaryObject); ok && dict == page {
			return n
		}
	}
	return 0
}

// pageDimensions reads the page MediaBox; US Letter when absent.
func pageDimensions(r *reader.PdfFileReader, pageIdx int) (width, height float64, err error) {
	page, err := r.GetPage(pageIdx)
	if err != nil {
		return 0, 0, err
	}

	mediaBox := page.Get("MediaBox")
	var arr generic.ArrayObject
	switch v := mediaBox.(type) {
	case generic.ArrayObject:
		arr = v
	case *generic.ArrayObject:
		arr = *v
	}
	if len(arr) >= 4 {
		llx := numericValue(arr[0])
		lly := numericValue(arr[1])
		urx := numericValue(arr[2])
		ury := numericValue(arr[3])
		return urx - llx, ury - lly, nil
	}
	return 612, 792, nil
}

func numericValue(obj generic.PdfObject) float64 {
	switch v := obj.(type) {
	case generic.IntegerObject:
		return float64(v)
	case generic.RealObject:
		return float64(v)
	default:
		return 0
	}
}

// resourceName derives a stable PDF name for a placeholder's image so
// identical inputs produce identical painting operators.
func resourceName(placeholderID string) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return -1
		}
	}, placeholderID)
	if id == "" {
		id = "0"
	}
	return "Sig" + id
}
