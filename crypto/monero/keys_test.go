package monero

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmrswap/swapd/common"
)

// TestJointPublicKeyMatchesSummedPrivateKey exercises spec.md's
// invariant that both swap participants derive the same joint public
// spend key, whether by summing private scalars or public points.
func TestJointPublicKeyMatchesSummedPrivateKey(t *testing.T) {
	a, err := NewPrivateSpendKey()
	require.NoError(t, err)
	b, err := NewPrivateSpendKey()
	require.NoError(t, err)

	sumPriv := SumPrivateSpendKeys(a, b)
	sumPub := SumPublicKeys(a.PublicKey(), b.PublicKey())

	require.Equal(t, sumPriv.PublicKey().Bytes(), sumPub.Bytes())
}

func TestAddressIsDeterministic(t *testing.T) {
	spend, err := NewPrivateSpendKey()
	require.NoError(t, err)
	view, err := NewPrivateViewKey()
	require.NoError(t, err)

	addr1, err := NewAddress(spend.PublicKey(), view.PublicKey(), common.Mainnet)
	require.NoError(t, err)
	addr2, err := NewAddress(spend.PublicKey(), view.PublicKey(), common.Mainnet)
	require.NoError(t, err)

	require.Equal(t, addr1, addr2)
	require.NotEmpty(t, addr1)
}

func TestAddressVariesByNetwork(t *testing.T) {
	spend, err := NewPrivateSpendKey()
	require.NoError(t, err)
	view, err := NewPrivateViewKey()
	require.NoError(t, err)

	mainnetAddr, err := NewAddress(spend.PublicKey(), view.PublicKey(), common.Mainnet)
	require.NoError(t, err)
	stagenetAddr, err := NewAddress(spend.PublicKey(), view.PublicKey(), common.Stagenet)
	require.NoError(t, err)

	require.NotEqual(t, mainnetAddr, stagenetAddr)
}

func TestPrivateViewKeyFromSeedIsDeterministic(t *testing.T) {
	seed := common.NewRandomSeed()

	k1, err := PrivateViewKeyFromSeed(seed)
	require.NoError(t, err)
	k2, err := PrivateViewKeyFromSeed(seed)
	require.NoError(t, err)

	require.Equal(t, k1.Bytes(), k2.Bytes())
}
