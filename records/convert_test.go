package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-eval/coco"
)

func TestParseKind(t *testing.T) {
	for _, name := range []string{"bbox", "segm", "keypoints"} {
		kind, err := ParseKind(name)
		require.NoError(t, err)
		assert.Equal(t, name, kind.String())
	}
	_, err := ParseKind("masks")
	assert.Error(t, err)
}

func TestConvertZeroInstances(t *testing.T) {
	for _, kind := range []Kind{KindBbox, KindSegm, KindKeypoints} {
		recs := Convert(kind, 7, Instances{})
		assert.Nil(t, recs, "zero instances must produce no records, not placeholders")
	}
}

func TestConvertBoxes(t *testing.T) {
	in := Instances{
		Boxes:  [][4]float32{{10, 20, 50, 80}, {0, 0, 4, 2}},
		Scores: []float32{0.9, 0.5},
		Labels: []int{1, 2},
	}
	recs := Convert(KindBbox, 42, in)
	require.Len(t, recs, 2)

	for i, rec := range recs {
		assert.Equal(t, 42, rec.ImageID)
		assert.Equal(t, in.Labels[i], rec.CategoryID)
		assert.Equal(t, in.Scores[i], rec.Score)
		require.Len(t, rec.Bbox, 4)
		// (x, y, x+w, y+h) must reconstruct the original corners.
		assert.Equal(t, in.Boxes[i][0], rec.Bbox[0])
		assert.Equal(t, in.Boxes[i][1], rec.Bbox[1])
		assert.Equal(t, in.Boxes[i][2], rec.Bbox[0]+rec.Bbox[2])
		assert.Equal(t, in.Boxes[i][3], rec.Bbox[1]+rec.Bbox[3])
	}
}

func TestConvertMasks(t *testing.T) {
	m := coco.NewMask(8, 8)
	for x := 2; x < 6; x++ {
		for y := 1; y < 5; y++ {
			m.Set(x, y)
		}
	}
	in := Instances{
		Masks:  []coco.Mask{m},
		Scores: []float32{0.7},
		Labels: []int{5},
	}
	recs := Convert(KindSegm, 3, in)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].Segmentation)
	assert.Equal(t, [2]int{8, 8}, recs[0].Segmentation.Size)
	assert.NotEmpty(t, recs[0].Segmentation.Counts)

	decoded, err := recs[0].Segmentation.Decode()
	require.NoError(t, err)
	assert.True(t, m.Equal(decoded))
}

func TestConvertKeypoints(t *testing.T) {
	in := Instances{
		Keypoints: [][]Keypoint{
			{{X: 1, Y: 2, V: 2}, {X: 3, Y: 4, V: 1}},
		},
		Scores: []float32{0.8},
		Labels: []int{1},
	}
	recs := Convert(KindKeypoints, 9, in)
	require.Len(t, recs, 1)
	assert.Equal(t, []float32{1, 2, 2, 3, 4, 1}, recs[0].Keypoints)
}

func TestConvertInstanceCount(t *testing.T) {
	in := Instances{
		Boxes:  [][4]float32{{0, 0, 1, 1}, {1, 1, 2, 2}, {2, 2, 3, 3}},
		Scores: []float32{0.1, 0.2, 0.3},
		Labels: []int{1, 1, 1},
	}
	assert.Len(t, Convert(KindBbox, 1, in), in.Len())
}
