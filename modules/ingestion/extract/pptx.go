package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// PPTX(OOXML presentation)는 zip 컨테이너다
// 슬라이드 순서는 ppt/presentation.xml의 sldIdLst가 정의하고,
// 실제 파트 경로는 relationship(.rels) 파일로 해석한다

const (
	relNSURI         = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	relTypeSlide     = relNSURI + "/slide"
	relTypeImage     = relNSURI + "/image"
	relTypeNotes     = relNSURI + "/notesSlide"
	presentationPart = "ppt/presentation.xml"
	contentTypesPart = "[Content_Types].xml"
)

// Deck - 열린 presentation 컨테이너
type Deck struct {
	files      map[string]*zip.File
	slideParts []string // deck 순서대로 정렬된 슬라이드 파트 경로
}

type relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

type relationshipsXML struct {
	Rels []relationship `xml:"Relationship"`
}

type presentationXML struct {
	SldIdLst struct {
		SldIds []struct {
			RelID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
		} `xml:"sldId"`
	} `xml:"sldIdLst"`
}

// IsValidContainer - 업로드 파일이 presentation 컨테이너인지 확인
// zip으로 열리고 [Content_Types].xml과 ppt/presentation.xml이 있어야 한다
func IsValidContainer(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}

	hasContentTypes := false
	hasPresentation := false
	for _, f := range zr.File {
		switch f.Name {
		case contentTypesPart:
			hasContentTypes = true
		case presentationPart:
			hasPresentation = true
		}
	}
	return hasContentTypes && hasPresentation
}

// OpenDeck - 컨테이너를 열고 슬라이드 순서를 해석
// 여기서 실패하면 stage 전체 실패 (컨테이너 자체를 못 여는 경우)
func OpenDeck(data []byte) (*Deck, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("cannot open presentation container: %w", err)
	}

	d := &Deck{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		d.files[f.Name] = f
	}

	if _, ok := d.files[presentationPart]; !ok {
		return nil, fmt.Errorf("not a presentation container: missing %s", presentationPart)
	}

	// presentation.xml의 sldIdLst가 deck 순서
	presData, err := d.readPart(presentationPart)
	if err != nil {
		return nil, fmt.Errorf("cannot read presentation part: %w", err)
	}

	var pres presentationXML
	if err := xml.Unmarshal(presData, &pres); err != nil {
		return nil, fmt.Errorf("cannot parse presentation part: %w", err)
	}

	rels, err := d.readRels(presentationPart)
	if err != nil {
		return nil, fmt.Errorf("cannot read presentation relationships: %w", err)
	}

	byID := make(map[string]relationship, len(rels.Rels))
	for _, r := range rels.Rels {
		byID[r.ID] = r
	}

	for _, sldID := range pres.SldIdLst.SldIds {
		rel, ok := byID[sldID.RelID]
		if !ok || rel.Type != relTypeSlide {
			continue
		}
		d.slideParts = append(d.slideParts, resolveTarget(presentationPart, rel.Target))
	}

	if len(d.slideParts) == 0 {
		return nil, fmt.Errorf("presentation contains no slides")
	}

	return d, nil
}

// SlideCount - 슬라이드 수
func (d *Deck) SlideCount() int {
	return len(d.slideParts)
}

// SlideImage - index번째 슬라이드의 대표 이미지 추출
// 이미지 relationship이 없는 슬라이드는 (nil, nil) - 비치명적, 필드 absent 처리
func (d *Deck) SlideImage(index int) ([]byte, error) {
	part, err := d.slidePart(index)
	if err != nil {
		return nil, err
	}

	rels, err := d.readRels(part)
	if err != nil {
		return nil, fmt.Errorf("cannot read slide relationships: %w", err)
	}

	for _, r := range rels.Rels {
		if r.Type != relTypeImage {
			continue
		}
		return d.readPart(resolveTarget(part, r.Target))
	}

	// 이미지 없는 슬라이드
	return nil, nil
}

// SlideNotes - index번째 슬라이드의 발표자 노트 텍스트 추출
// 노트가 없으면 빈 문자열 - 비치명적, 필드 absent 처리
func (d *Deck) SlideNotes(index int) (string, error) {
	part, err := d.slidePart(index)
	if err != nil {
		return "", err
	}

	rels, err := d.readRels(part)
	if err != nil {
		return "", fmt.Errorf("cannot read slide relationships: %w", err)
	}

	for _, r := range rels.Rels {
		if r.Type != relTypeNotes {
			continue
		}

		notesData, err := d.readPart(resolveTarget(part, r.Target))
		if err != nil {
			return "", err
		}
		return extractTextRuns(notesData)
	}

	return "", nil
}

func (d *Deck) slidePart(index int) (string, error) {
	if index < 0 || index >= len(d.slideParts) {
		return "", fmt.Errorf("slide index %d out of range [0,%d)", index, len(d.slideParts))
	}
	return d.slideParts[index], nil
}

func (d *Deck) readPart(name string) ([]byte, error) {
	f, ok := d.files[name]
	if !ok {
		return nil, fmt.Errorf("missing part: %s", name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("cannot open part %s: %w", name, err)
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// readRels - 파트의 relationship 파일 읽기
// "ppt/slides/slide1.xml" → "ppt/slides/_rels/slide1.xml.rels"
func (d *Deck) readRels(partName string) (*relationshipsXML, error) {
	relsPath := path.Join(path.Dir(partName), "_rels", path.Base(partName)+".rels")

	var rels relationshipsXML
	if _, ok := d.files[relsPath]; !ok {
		return &rels, nil // rels 파일이 없으면 relationship 없음
	}

	data, err := d.readPart(relsPath)
	if err != nil {
		return nil, err
	}
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", relsPath, err)
	}
	return &rels, nil
}

// resolveTarget - relationship target을 파트 기준 경로로 해석
// "slides/slide1.xml" (presentation 기준), "../media/image1.png" (slide 기준)
func resolveTarget(basePart, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(path.Dir(basePart), target))
}

// extractTextRuns - DrawingML 텍스트 런(<a:t>)을 모아서 노트 텍스트 구성
// 문단(<a:p>) 경계는 공백으로 잇는다
func extractTextRuns(notesXML []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(notesXML))

	var sb strings.Builder
	inTextRun := false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("cannot parse notes part: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inTextRun = true
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inTextRun = false
			}
			if t.Name.Local == "p" && sb.Len() > 0 {
				sb.WriteString(" ")
			}
		case xml.CharData:
			if inTextRun {
				sb.Write(t)
			}
		}
	}

	return strings.TrimSpace(strings.Join(strings.Fields(sb.String()), " ")), nil
}
