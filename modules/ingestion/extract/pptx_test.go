package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 테스트용 최소 pptx 컨테이너 빌더
type deckBuilder struct {
	slides []testSlide
}

type testSlide struct {
	image []byte // nil이면 이미지 relationship 없음
	notes string // 빈 문자열이면 노트 파트 없음
}

func (b *deckBuilder) build(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name, content string) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	writeBytes := func(name string, content []byte) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}

	write("[Content_Types].xml", `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`)

	// presentation.xml - sldIdLst가 deck 순서를 정의
	sldIds := ""
	presRels := ""
	for i := range b.slides {
		sldIds += fmt.Sprintf(`<p:sldId id="%d" r:id="rId%d"/>`, 256+i, i+1)
		presRels += fmt.Sprintf(
			`<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide%d.xml"/>`,
			i+1, i+1)
	}
	write("ppt/presentation.xml", fmt.Sprintf(
		`<?xml version="1.0"?><p:presentation xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><p:sldIdLst>%s</p:sldIdLst></p:presentation>`,
		sldIds))
	write("ppt/_rels/presentation.xml.rels", fmt.Sprintf(
		`<?xml version="1.0"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">%s</Relationships>`,
		presRels))

	for i, s := range b.slides {
		slideName := fmt.Sprintf("ppt/slides/slide%d.xml", i+1)
		write(slideName, `<?xml version="1.0"?><p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"/>`)

		rels := ""
		if s.image != nil {
			writeBytes(fmt.Sprintf("ppt/media/image%d.png", i+1), s.image)
			rels += fmt.Sprintf(
				`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/image%d.png"/>`,
				i+1)
		}
		if s.notes != "" {
			write(fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", i+1), fmt.Sprintf(
				`<?xml version="1.0"?><p:notes xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:txBody><a:p><a:r><a:t>%s</a:t></a:r></a:p></p:txBody></p:notes>`,
				s.notes))
			rels += fmt.Sprintf(
				`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesSlide" Target="../notesSlides/notesSlide%d.xml"/>`,
				i+1)
		}
		if rels != "" {
			write(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", i+1), fmt.Sprintf(
				`<?xml version="1.0"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">%s</Relationships>`,
				rels))
		}
	}

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestIsValidContainer(t *testing.T) {
	b := &deckBuilder{slides: []testSlide{{image: []byte("img")}}}
	assert.True(t, IsValidContainer(b.build(t)))

	assert.False(t, IsValidContainer([]byte("not a zip at all")))

	// zip이지만 presentation 파트가 없는 경우
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("hello.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	assert.False(t, IsValidContainer(buf.Bytes()))
}

func TestOpenDeckSlideCount(t *testing.T) {
	b := &deckBuilder{slides: []testSlide{
		{image: []byte("img0"), notes: "slide zero notes"},
		{image: []byte("img1")},
		{image: []byte("img2"), notes: "slide two notes"},
	}}

	deck, err := OpenDeck(b.build(t))
	require.NoError(t, err)
	assert.Equal(t, 3, deck.SlideCount())
}

func TestOpenDeckInvalid(t *testing.T) {
	_, err := OpenDeck([]byte("garbage"))
	assert.Error(t, err)
}

func TestSlideImage(t *testing.T) {
	b := &deckBuilder{slides: []testSlide{
		{image: []byte("png-bytes-0")},
		{}, // 이미지 없는 슬라이드
		{image: []byte("png-bytes-2")},
	}}

	deck, err := OpenDeck(b.build(t))
	require.NoError(t, err)

	img, err := deck.SlideImage(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes-0"), img)

	// 이미지 relationship이 없는 슬라이드는 비치명적으로 nil
	img, err = deck.SlideImage(1)
	require.NoError(t, err)
	assert.Nil(t, img)

	img, err = deck.SlideImage(2)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes-2"), img)

	_, err = deck.SlideImage(5)
	assert.Error(t, err)
}

func TestSlideNotes(t *testing.T) {
	b := &deckBuilder{slides: []testSlide{
		{image: []byte("x"), notes: "Welcome to the talk"},
		{image: []byte("y")},
	}}

	deck, err := OpenDeck(b.build(t))
	require.NoError(t, err)

	notes, err := deck.SlideNotes(0)
	require.NoError(t, err)
	assert.Equal(t, "Welcome to the talk", notes)

	notes, err = deck.SlideNotes(1)
	require.NoError(t, err)
	assert.Equal(t, "", notes)
}

// deck 순서는 sldIdLst 순서를 따라야 한다 (파일명 순서가 아니라)
func TestSlideOrderFollowsSldIdLst(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name, content string) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}

	write("[Content_Types].xml", `<?xml version="1.0"?><Types/>`)
	// sldIdLst가 slide2를 먼저 가리킨다
	write("ppt/presentation.xml",
		`<?xml version="1.0"?><p:presentation xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><p:sldIdLst><p:sldId id="256" r:id="rIdB"/><p:sldId id="257" r:id="rIdA"/></p:sldIdLst></p:presentation>`)
	write("ppt/_rels/presentation.xml.rels",
		`<?xml version="1.0"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rIdA" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide1.xml"/><Relationship Id="rIdB" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide2.xml"/></Relationships>`)
	write("ppt/slides/slide1.xml", `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"/>`)
	write("ppt/slides/slide2.xml", `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"/>`)
	write("ppt/slides/_rels/slide1.xml.rels",
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/a.png"/></Relationships>`)
	write("ppt/slides/_rels/slide2.xml.rels",
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/b.png"/></Relationships>`)
	write("ppt/media/a.png", "image-a")
	write("ppt/media/b.png", "image-b")
	require.NoError(t, zw.Close())

	deck, err := OpenDeck(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 2, deck.SlideCount())

	// index 0은 sldIdLst의 첫 항목인 slide2여야 한다
	img, err := deck.SlideImage(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("image-b"), img)

	img, err = deck.SlideImage(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("image-a"), img)
}
