package control

import (
	"testing"

	"go.viam.com/impedance/testutils"
)

func TestMain(m *testing.M) {
	testutils.VerifyTestMain(m)
}
